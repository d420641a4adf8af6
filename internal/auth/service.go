package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"OpenUTR/pkg/logger"
)

const (
	tokenTypeAccess   = "access"
	tokenTypeRefresh  = "refresh"
	grantTypePassword = "password"
	grantTypeRefresh  = "refresh_token"
)

// Service 负责签发令牌并校验 API 请求的身份。
type Service struct {
	mode   Mode
	store  Store
	tokens *tokenManager
	audit  *slog.Logger
}

// NewService 构造认证服务。jwt 模式下会把 cfg.Seeds 写入支持 SeedWriter 的存储。
func NewService(ctx context.Context, cfg Config, store Store) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, store: store, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeJWT:
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}

	if store == nil {
		return nil, errors.New("jwt mode requires a user store")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("jwt secret must be configured")
	}
	if cfg.JWT.AccessTTL <= 0 {
		cfg.JWT.AccessTTL = 3600
	}
	if cfg.JWT.RefreshTTL <= 0 {
		cfg.JWT.RefreshTTL = 86400
	}
	svc.tokens = &tokenManager{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.JWT.Issuer,
		audience:   append([]string(nil), cfg.JWT.Audience...),
		accessTTL:  time.Duration(cfg.JWT.AccessTTL) * time.Second,
		refreshTTL: time.Duration(cfg.JWT.RefreshTTL) * time.Second,
		now:        time.Now,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if writer, ok := store.(SeedWriter); ok {
		for _, seed := range cfg.Seeds {
			if err := writer.ApplySeed(ctx, seed); err != nil {
				return nil, fmt.Errorf("apply seed %s: %w", seed.Username, err)
			}
		}
	}
	return svc, nil
}

// Enabled 报告是否需要对请求做身份校验。
func (s *Service) Enabled() bool {
	return s != nil && s.mode != ModeDisabled
}

// Authenticate 处理令牌端点请求。
func (s *Service) Authenticate(ctx context.Context, req TokenRequest) (*TokenPair, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	grant := strings.ToLower(strings.TrimSpace(req.GrantType))
	if grant == "" {
		grant = grantTypePassword
	}

	var subject *Subject
	switch grant {
	case grantTypePassword:
		user, err := s.store.FindUserByUsername(ctx, strings.TrimSpace(req.Username))
		if err != nil {
			return nil, ErrInvalidCredentials
		}
		if user.Disabled {
			return nil, ErrSubjectRevoked
		}
		if !VerifyPassword(user.PasswordHash, req.Password) {
			return nil, ErrInvalidCredentials
		}
		subject, err = s.loadActive(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	case grantTypeRefresh:
		var err error
		subject, err = s.subjectFromToken(ctx, req.RefreshToken, tokenTypeRefresh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedGrant
	}

	pair, err := s.tokens.issue(subject)
	if err != nil {
		return nil, err
	}
	s.audit.Info("token_issued", "user", subject.Username, "grant", grant, "account", subject.Account)
	return pair, nil
}

// AuthenticateRequest 校验 Authorization 头并返回对应主体。
func (s *Service) AuthenticateRequest(ctx context.Context, authorization string) (*Subject, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return s.subjectFromToken(ctx, strings.TrimSpace(token), tokenTypeAccess)
}

// subjectFromToken 总是从存储重新加载主体，令牌签发后的禁用与权限变更立即生效。
func (s *Service) subjectFromToken(ctx context.Context, token, want string) (*Subject, error) {
	claims, err := s.tokens.verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != want {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return s.loadActive(ctx, userID)
}

func (s *Service) loadActive(ctx context.Context, userID int64) (*Subject, error) {
	subject, err := s.store.LoadSubject(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if subject.Disabled {
		return nil, ErrSubjectRevoked
	}
	return subject, nil
}

type tokenManager struct {
	secret     []byte
	issuer     string
	audience   []string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username,omitempty"`
	Account     string   `json:"account,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"type"`
}

func (m *tokenManager) issue(subject *Subject) (*TokenPair, error) {
	now := m.now()
	access, err := m.sign(subject, tokenTypeAccess, now, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(subject, tokenTypeRefresh, now, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		ExpiresIn:        int64(m.accessTTL.Seconds()),
		RefreshToken:     refresh,
		RefreshExpiresIn: int64(m.refreshTTL.Seconds()),
		TokenType:        "Bearer",
		Account:          subject.Account,
	}, nil
}

func (m *tokenManager) sign(subject *Subject, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(subject.ID, 10),
			Audience:  jwt.ClaimStrings(m.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:  subject.Username,
		Account:   subject.Account,
		TokenType: tokenType,
	}
	if tokenType == tokenTypeAccess {
		claims.Permissions = append([]string(nil), subject.Permissions...)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *tokenManager) verify(token string) (*tokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if len(m.audience) > 0 {
		opts = append(opts, jwt.WithAudience(m.audience[0]))
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

// HashPassword 使用 bcrypt 生成密码哈希。
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword 比较明文密码与 bcrypt 哈希。
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
