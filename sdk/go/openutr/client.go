// Package openutr is a Go client for the openutrd REST API.
package openutr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"OpenUTR/internal/devnet"
	"OpenUTR/internal/router"
	"OpenUTR/internal/task"
)

// DefaultHTTPTimeout applies to clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Wire types shared with the daemon.
type (
	Batch    = task.Task
	Stats    = task.TaskStats
	Output   = router.Output
	Action   = router.Action
	Input    = router.Input
	Payment  = router.Payment
	Contract = devnet.Contract
)

// Client wraps the HTTP interactions with openutrd.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// Token is the pair issued by /api/v1/auth/token.
type Token struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	TokenType        string `json:"token_type"`
	Account          string `json:"account,omitempty"`
}

// BatchSubmission is the payload of POST /api/v1/batches. Caller accepts a
// genesis account name or a hex address.
type BatchSubmission struct {
	ID       string            `json:"id,omitempty"`
	Caller   string            `json:"caller"`
	Value    *big.Int          `json:"value,omitempty"`
	Outputs  []Output          `json:"outputs"`
	Actions  []Action          `json:"actions"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListQuery filters batch listings and stats. Zero values are omitted.
// Caller and Token accept genesis names or hex addresses.
type ListQuery struct {
	Limit     int
	Offset    int
	Statuses  []string
	Caller    string
	Token     string
	ErrorCode string
	Since     time.Time
	Until     time.Time
	Ascending bool
	Query     string
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if len(q.Statuses) > 0 {
		v.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.Caller != "" {
		v.Set("caller", q.Caller)
	}
	if q.Token != "" {
		v.Set("token", q.Token)
	}
	if q.ErrorCode != "" {
		v.Set("error_code", q.ErrorCode)
	}
	if !q.Since.IsZero() {
		v.Set("since", strconv.FormatInt(q.Since.Unix(), 10))
	}
	if !q.Until.IsZero() {
		v.Set("until", strconv.FormatInt(q.Until.Unix(), 10))
	}
	if q.Ascending {
		v.Set("order", "asc")
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	return v
}

// Commitment is the remaining amount recorded under a payment key.
type Commitment struct {
	Key       hexutil.Bytes `json:"key"`
	Payment   Payment       `json:"payment"`
	Remaining *big.Int      `json:"remaining"`
}

// APIError is a non-2xx response. Code carries the router or task error code;
// Details holds context such as the token of a failed transfer.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("openutr api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("openutr api error (%d): %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewClient creates a client for the API rooted at rawURL. A nil httpClient
// gets DefaultHTTPTimeout.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Authenticate logs in with a password grant and keeps the tokens for later calls.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Token, error) {
	return c.token(ctx, map[string]string{"grant_type": "password", "username": username, "password": password})
}

// Refresh exchanges the stored refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context) (Token, error) {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()
	if refresh == "" {
		return Token{}, errors.New("openutr: refresh token is not set")
	}
	return c.token(ctx, map[string]string{"grant_type": "refresh_token", "refresh_token": refresh})
}

func (c *Client) token(ctx context.Context, body map[string]string) (Token, error) {
	var token Token
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/token", nil, body, &token); err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.accessToken = token.AccessToken
	c.refreshToken = token.RefreshToken
	c.mu.Unlock()
	return token, nil
}

// AccessToken returns the stored access token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// SubmitBatch queues a batch. Resubmitting an existing ID returns the stored batch.
func (c *Client) SubmitBatch(ctx context.Context, submission BatchSubmission) (Batch, error) {
	var batch Batch
	err := c.send(ctx, http.MethodPost, "/api/v1/batches", nil, submission, &batch)
	return batch, err
}

func (c *Client) GetBatch(ctx context.Context, id string) (Batch, error) {
	var batch Batch
	err := c.send(ctx, http.MethodGet, "/api/v1/batches/"+url.PathEscape(id), nil, nil, &batch)
	return batch, err
}

func (c *Client) ListBatches(ctx context.Context, q ListQuery) ([]Batch, error) {
	var batches []Batch
	err := c.send(ctx, http.MethodGet, "/api/v1/batches", q.values(), nil, &batches)
	return batches, err
}

func (c *Client) Stats(ctx context.Context, q ListQuery) (Stats, error) {
	var stats Stats
	err := c.send(ctx, http.MethodGet, "/api/v1/batches/stats", q.values(), nil, &stats)
	return stats, err
}

// WaitBatch polls until the batch succeeds or fails, or ctx is done.
func (c *Client) WaitBatch(ctx context.Context, id string, interval time.Duration) (Batch, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		batch, err := c.GetBatch(ctx, id)
		if err != nil {
			return Batch{}, err
		}
		if batch.Finished() {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Commitment reads the remaining amount under an encoded payment key.
func (c *Client) Commitment(ctx context.Context, key []byte) (Commitment, error) {
	var out Commitment
	err := c.send(ctx, http.MethodGet, "/api/v1/commitments/"+hexutil.Encode(key), nil, nil, &out)
	return out, err
}

// Discard lowers a commitment on behalf of from, which must be the payer.
func (c *Client) Discard(ctx context.Context, key []byte, from string, amount *big.Int) (Commitment, error) {
	var out Commitment
	body := map[string]any{"from": from, "amount": amount}
	err := c.send(ctx, http.MethodPost, "/api/v1/commitments/"+hexutil.Encode(key)+"/discard", nil, body, &out)
	return out, err
}

func (c *Client) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	var out struct {
		Supported bool `json:"supported"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/interfaces/"+hexutil.Encode(id[:]), nil, nil, &out)
	return out.Supported, err
}

func (c *Client) Paused(ctx context.Context) (bool, error) {
	return c.pauseState(ctx, http.MethodGet, "/api/v1/pause", nil)
}

// Pause halts batch execution. value must be non-zero.
func (c *Client) Pause(ctx context.Context, from string, value *big.Int) (bool, error) {
	return c.pauseState(ctx, http.MethodPost, "/api/v1/pause", map[string]any{"from": from, "value": value})
}

func (c *Client) Unpause(ctx context.Context, from string) (bool, error) {
	return c.pauseState(ctx, http.MethodPost, "/api/v1/unpause", map[string]any{"from": from})
}

func (c *Client) pauseState(ctx context.Context, method, endpoint string, body any) (bool, error) {
	var out struct {
		Paused bool `json:"paused"`
	}
	err := c.send(ctx, method, endpoint, nil, body, &out)
	return out.Paused, err
}

// Contracts lists the contracts deployed by the daemon's genesis.
func (c *Client) Contracts(ctx context.Context) ([]Contract, error) {
	var out []Contract
	err := c.send(ctx, http.MethodGet, "/api/v1/contracts", nil, nil, &out)
	return out, err
}

// ContractAddress looks a contract up by name.
func (c *Client) ContractAddress(ctx context.Context, name string) (common.Address, error) {
	contracts, err := c.Contracts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	for _, contract := range contracts {
		if contract.Name == name {
			return contract.Address, nil
		}
	}
	return common.Address{}, fmt.Errorf("openutr: contract %q not found", name)
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
