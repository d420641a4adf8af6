package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"OpenUTR/internal/auth"
	"OpenUTR/internal/chain"
	"OpenUTR/internal/devnet"
	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/observability/metrics"
	"OpenUTR/internal/router"
	"OpenUTR/internal/task"
	"OpenUTR/pkg/logger"
)

// Backend 是 API 访问路由器状态所需的能力，由开发网实现。
type Backend interface {
	Resolve(nameOrAddress string) (common.Address, error)
	Contracts() []devnet.Contract
	Commitment(ctx context.Context, p router.Payment) *big.Int
	Discard(ctx context.Context, from common.Address, key []byte, amount *big.Int) error
	Pause(ctx context.Context, from common.Address, value *big.Int) error
	Unpause(ctx context.Context, from common.Address) error
	Paused(ctx context.Context) (bool, error)
	SupportsInterface(ctx context.Context, id [4]byte) (bool, error)
}

// Server 负责暴露 REST 接口，供外部提交批次并查询路由器状态。
type Server struct {
	addr    string
	batches *task.Service
	backend Backend
	auth    *auth.Service
	log     *slog.Logger
}

// Option 调整 Server 的可选行为。
type Option func(*Server)

// WithAuth 为写操作与批次查询启用令牌校验，并要求请求中的账户与令牌绑定的账户一致。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, batches *task.Service, backend Backend, opts ...Option) *Server {
	s := &Server{addr: addr, batches: batches, backend: backend, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	read := auth.Permissions{http.MethodGet: {auth.PermBatchesRead}}
	mux := http.NewServeMux()
	s.route(mux, "/api/v1/auth/token", "auth_token", nil, s.handleToken)
	s.route(mux, "/api/v1/batches", "batches", auth.Permissions{
		http.MethodGet:  {auth.PermBatchesRead},
		http.MethodPost: {auth.PermBatchesSubmit},
	}, s.handleBatches)
	s.route(mux, "/api/v1/batches/stats", "batch_stats", read, s.handleBatchStats)
	s.route(mux, "/api/v1/batches/", "batch_detail", read, s.handleBatchDetail)
	s.route(mux, "/api/v1/commitments/", "commitments", auth.Permissions{http.MethodPost: {auth.PermCommitmentsDiscard}}, s.handleCommitment)
	s.route(mux, "/api/v1/interfaces/", "interfaces", nil, s.handleInterface)
	s.route(mux, "/api/v1/pause", "pause", auth.Permissions{http.MethodPost: {auth.PermRouterPause}}, s.handlePause)
	s.route(mux, "/api/v1/unpause", "unpause", auth.Permissions{"*": {auth.PermRouterPause}}, s.handleUnpause)
	s.route(mux, "/api/v1/contracts", "contracts", nil, s.handleContracts)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, perms auth.Permissions, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if len(perms) > 0 {
		handler = s.auth.Middleware(name, perms)(handler)
	}
	mux.Handle(pattern, instrument(name, handler))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 POST"))
		return
	}
	if !s.auth.Enabled() {
		writeError(w, http.StatusNotFound, xerrors.New(xerrors.CodeNotFound, "未启用认证"))
		return
	}
	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	pair, err := s.auth.Authenticate(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, pair)
	case stdErrors.Is(err, auth.ErrUnsupportedGrant):
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "不支持的授权方式"))
	case stdErrors.Is(err, auth.ErrSubjectRevoked):
		writeError(w, http.StatusForbidden, xerrors.Wrap(auth.CodeForbidden, err, "用户已禁用"))
	default:
		writeError(w, http.StatusUnauthorized, xerrors.Wrap(auth.CodeUnauthenticated, err, "认证失败"))
	}
}

// actingAccount 解析请求中的账户，并确认令牌主体可以代表该账户操作。
func (s *Server) actingAccount(r *http.Request, field, nameOrAddress string) (common.Address, int, error) {
	addr, err := s.backend.Resolve(nameOrAddress)
	if err != nil {
		return common.Address{}, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析 "+field)
	}
	if err := auth.CheckAccount(r.Context(), addr, s.backend.Resolve); err != nil {
		return common.Address{}, http.StatusForbidden, err
	}
	return addr, 0, nil
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitBatch(w, r)
	case http.MethodGet:
		s.handleListBatches(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET/POST"))
	}
}

// submitRequest 允许 caller 使用创世名称。
type submitRequest struct {
	ID       string            `json:"id,omitempty"`
	Caller   string            `json:"caller"`
	Value    *big.Int          `json:"value,omitempty"`
	Outputs  []router.Output   `json:"outputs"`
	Actions  []router.Action   `json:"actions"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil || s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "批次服务未初始化"))
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	caller, status, err := s.actingAccount(r, "caller", req.Caller)
	if err != nil {
		writeError(w, status, err)
		return
	}
	submitted, err := s.batches.Submit(r.Context(), task.BatchRequest{
		ID:       req.ID,
		Caller:   caller,
		Value:    req.Value,
		Outputs:  req.Outputs,
		Actions:  req.Actions,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	status = http.StatusAccepted
	if submitted.Finished() {
		status = http.StatusOK
	}
	writeJSON(w, status, submitted)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "批次服务未初始化"))
		return
	}
	opts, err := s.listOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	batches, err := s.batches.List(r.Context(), opts...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "批次服务未初始化"))
		return
	}
	opts, err := s.listOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := s.batches.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listOptions(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须是整数")
		}
		opts = append(opts, task.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须是整数")
		}
		opts = append(opts, task.WithOffset(offset))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "未知的状态: %s", part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if raw := q.Get("caller"); raw != "" {
		caller, err := s.resolve(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析 caller")
		}
		opts = append(opts, task.WithCaller(caller))
	}
	if raw := q.Get("token"); raw != "" {
		token, err := s.resolve(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析 token")
		}
		opts = append(opts, task.WithToken(token))
	}
	if raw := q.Get("error_code"); raw != "" {
		opts = append(opts, task.WithErrorCode(raw))
	}
	if raw := q.Get("has_result"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "has_result 必须是布尔值")
		}
		opts = append(opts, task.WithResultPresence(has))
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "since 必须是 Unix 时间戳")
		}
		opts = append(opts, task.WithUpdatedSince(time.Unix(ts, 0)))
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "until 必须是 Unix 时间戳")
		}
		opts = append(opts, task.WithUpdatedUntil(time.Unix(ts, 0)))
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	if raw := q.Get("q"); raw != "" {
		opts = append(opts, task.WithQuery(raw))
	}
	return opts, nil
}

func (s *Server) resolve(nameOrAddress string) (common.Address, error) {
	if s.backend != nil {
		return s.backend.Resolve(nameOrAddress)
	}
	if !common.IsHexAddress(nameOrAddress) {
		return common.Address{}, xerrors.Newf(xerrors.CodeInvalidArgument, "无效地址: %s", nameOrAddress)
	}
	return common.HexToAddress(nameOrAddress), nil
}

func (s *Server) handleBatchDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/batches/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "缺少批次 ID"))
		return
	}
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "批次服务未初始化"))
		return
	}
	batch, err := s.batches.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type commitmentResponse struct {
	Key       hexutil.Bytes  `json:"key"`
	Payment   router.Payment `json:"payment"`
	Remaining *big.Int       `json:"remaining"`
}

type discardRequest struct {
	From   string   `json:"from"`
	Amount *big.Int `json:"amount"`
}

// handleCommitment 处理 GET /api/v1/commitments/{key} 与 POST /api/v1/commitments/{key}/discard。
func (s *Server) handleCommitment(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "路由器未初始化"))
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/commitments/"), "/")
	rawKey, action, _ := strings.Cut(rest, "/")
	key, err := hexutil.Decode(rawKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "承诺键必须是 0x 开头的十六进制"))
		return
	}
	payment, err := router.DecodePayment(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(router.CodeInvalidPayment, err, "承诺键无效"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, commitmentResponse{Key: key, Payment: payment, Remaining: s.backend.Commitment(r.Context(), payment)})
	case action == "discard" && r.Method == http.MethodPost:
		var req discardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
			return
		}
		if req.Amount != nil && (req.Amount.Sign() < 0 || req.Amount.BitLen() > 256) {
			writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "amount 必须是非负的 uint256"))
			return
		}
		from, status, err := s.actingAccount(r, "from", req.From)
		if err != nil {
			writeError(w, status, err)
			return
		}
		if err := s.backend.Discard(r.Context(), from, key, req.Amount); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, commitmentResponse{Key: key, Payment: payment, Remaining: s.backend.Commitment(r.Context(), payment)})
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "不支持的承诺操作"))
	}
}

func (s *Server) handleInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "路由器未初始化"))
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/interfaces/"), "/")
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != 4 {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "接口 ID 必须是 4 字节十六进制"))
		return
	}
	var id chain.Selector
	copy(id[:], decoded)
	supported, err := s.backend.SupportsInterface(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interface_id": hexutil.Encode(decoded), "supported": supported})
}

type pauseRequest struct {
	From  string   `json:"from"`
	Value *big.Int `json:"value,omitempty"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writePauseState(w, r)
	case http.MethodPost:
		s.changePause(w, r, true)
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET/POST"))
	}
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 POST"))
		return
	}
	s.changePause(w, r, false)
}

func (s *Server) changePause(w http.ResponseWriter, r *http.Request, pause bool) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "路由器未初始化"))
		return
	}
	var req pauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}
	from, status, err := s.actingAccount(r, "from", req.From)
	if err != nil {
		writeError(w, status, err)
		return
	}
	if pause {
		err = s.backend.Pause(r.Context(), from, req.Value)
	} else {
		err = s.backend.Unpause(r.Context(), from)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writePauseState(w, r)
}

func (s *Server) writePauseState(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "路由器未初始化"))
		return
	}
	paused, err := s.backend.Paused(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.New(xerrors.CodeInvalidArgument, "仅支持 GET"))
		return
	}
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "路由器未初始化"))
		return
	}
	writeJSON(w, http.StatusOK, s.backend.Contracts())
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// statusFor 将错误码映射为 HTTP 状态码。路由器拒绝的请求返回 422，callee 的 revert 原因原样返回。
func statusFor(err error) int {
	switch router.ErrorCode(err) {
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	case auth.CodeForbidden:
		return http.StatusForbidden
	case task.CodeTaskValidation, xerrors.CodeInvalidArgument, router.CodeMissingValue, router.CodeInvalidPayment:
		return http.StatusBadRequest
	case task.CodeTaskConflict:
		return http.StatusConflict
	case router.CodeUnauthorized:
		return http.StatusForbidden
	case router.CodePaused:
		return http.StatusServiceUnavailable
	case router.CodeNotCallable, router.CodeInvalidAssetClass, router.CodeInvalidMode, router.CodeInsufficientOutput,
		router.CodeOutputBalanceOverflow, router.CodeInsufficientCommitment, router.CodeTransferFailed, router.CodeCalleeFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	code := router.ErrorCode(err)
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error(), Details: xerrors.MetadataOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 记录每个路由的请求数与延迟。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
