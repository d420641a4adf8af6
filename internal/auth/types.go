package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	xerrors "OpenUTR/internal/errors"
)

// API 权限名称。
const (
	PermBatchesRead        = "batches:read"
	PermBatchesSubmit      = "batches:submit"
	PermRouterPause        = "router:pause"
	PermCommitmentsDiscard = "commitments:discard"
	// PermImpersonate 允许主体以任意链上账户的身份发起操作。
	PermImpersonate = "accounts:impersonate"
)

const (
	CodeUnauthenticated xerrors.Code = "AUTH_UNAUTHENTICATED"
	CodeForbidden       xerrors.Code = "AUTH_FORBIDDEN"
)

func init() {
	xerrors.Register(CodeUnauthenticated, xerrors.Attributes{Message: "authentication required", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeForbidden, xerrors.Attributes{Message: "operation not permitted", Severity: xerrors.SeverityWarning})
}

var (
	ErrDisabled           = errors.New("authentication disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedGrant   = errors.New("unsupported grant type")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingToken       = errors.New("missing bearer token")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrSubjectRevoked     = errors.New("subject is disabled")
	ErrAccountMismatch    = errors.New("subject is not bound to the acting account")
)

// Store 提供用户目录，实现需要并发安全。
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	LoadSubject(ctx context.Context, userID int64) (*Subject, error)
}

// SeedWriter 由可以写入初始用户的存储实现。
type SeedWriter interface {
	ApplySeed(ctx context.Context, seed Seed) error
}

// User 是带凭据的用户记录。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Disabled     bool
}

// Subject 是通过认证的调用方。Account 为其绑定的链上账户，可以是创世名称或十六进制地址。
type Subject struct {
	ID          int64
	Username    string
	Account     string
	Permissions []string
	Disabled    bool

	permissionsSet map[string]struct{}
}

func (s *Subject) index() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[normalisePermission(perm)] = struct{}{}
	}
}

// HasPermission 判断主体是否拥有指定权限。
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.index()
	_, ok := s.permissionsSet[normalisePermission(permission)]
	return ok
}

// Authorize 要求主体同时具备全部权限。
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	if s.Disabled {
		return ErrSubjectRevoked
	}
	for _, perm := range perms {
		if perm != "" && !s.HasPermission(perm) {
			return fmt.Errorf("%w: missing %s", ErrPermissionDenied, perm)
		}
	}
	return nil
}

func (s *Subject) clone() *Subject {
	if s == nil {
		return nil
	}
	return &Subject{
		ID:          s.ID,
		Username:    s.Username,
		Account:     s.Account,
		Permissions: append([]string(nil), s.Permissions...),
		Disabled:    s.Disabled,
	}
}

func normalisePermission(perm string) string {
	return strings.ToLower(strings.TrimSpace(perm))
}

// TokenRequest 是令牌端点接受的请求体，支持 password 与 refresh_token 两种授权方式。
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenPair 是签发的访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	TokenType        string `json:"token_type"`
	Account          string `json:"account,omitempty"`
}

// Mode 枚举认证方式。
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeJWT      Mode = "jwt"
)

// Config 配置认证服务。
type Config struct {
	Mode  Mode
	JWT   JWTOptions
	Seeds []Seed
}

// JWTOptions 描述本地签发的 HS256 令牌。TTL 以秒为单位。
type JWTOptions struct {
	Secret     string
	Issuer     string
	Audience   []string
	AccessTTL  int64
	RefreshTTL int64
}

// Seed 描述启动时写入存储的用户。
type Seed struct {
	Username    string
	Password    string
	Account     string
	Permissions []string
	Disabled    bool
}
