package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "OpenUTR/internal/errors"
)

type subjectKey struct{}

// WithSubject 把主体放入上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 取出中间件放入的主体，认证关闭时返回 nil。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	subject, _ := ctx.Value(subjectKey{}).(*Subject)
	return subject
}

// Permissions 按 HTTP 方法声明所需权限，"*" 匹配其余方法。未声明的方法不做校验。
type Permissions map[string][]string

func (p Permissions) forMethod(method string) ([]string, bool) {
	if perms, ok := p[method]; ok {
		return perms, true
	}
	perms, ok := p["*"]
	return perms, ok
}

// Middleware 校验 Bearer 令牌与权限，并把主体写入请求上下文。认证关闭时直接放行。
func (s *Service) Middleware(event string, required Permissions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !s.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, guarded := required.forMethod(r.Method)
			if !guarded {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err == nil {
				err = subject.Authorize(perms...)
			}
			if err != nil {
				status, code := http.StatusUnauthorized, CodeUnauthenticated
				if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrSubjectRevoked) {
					status, code = http.StatusForbidden, CodeForbidden
				}
				s.audit.Warn("access_denied",
					"event", event,
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"error", err.Error(),
				)
				writeDenied(w, status, code, err)
				return
			}

			start := time.Now()
			rec := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(WithSubject(r.Context(), subject)))
			s.audit.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user", subject.Username,
			)
		})
	}
}

// CheckAccount 确认上下文中的主体可以以 account 的身份操作。上下文中没有主体表示认证关闭。
func CheckAccount(ctx context.Context, account common.Address, resolve func(string) (common.Address, error)) error {
	subject := SubjectFromContext(ctx)
	if subject == nil || subject.HasPermission(PermImpersonate) {
		return nil
	}
	if subject.Account == "" {
		return xerrors.Wrap(CodeForbidden, ErrAccountMismatch, fmt.Sprintf("用户 %s 未绑定链上账户", subject.Username))
	}
	bound, err := resolve(subject.Account)
	if err != nil {
		return xerrors.Wrap(CodeForbidden, err, "无法解析绑定账户")
	}
	if bound != account {
		return xerrors.Wrap(CodeForbidden, ErrAccountMismatch, fmt.Sprintf("用户 %s 不能以 %s 的身份操作", subject.Username, account.Hex()))
	}
	return nil
}

func writeDenied(w http.ResponseWriter, status int, code xerrors.Code, err error) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="openutr"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": string(code), "message": err.Error()})
}

type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
