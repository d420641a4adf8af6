package task

import (
	"context"

	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/router"
)

// RecoveryHandler 决定不可重试的失败是否仍应重新排队。
type RecoveryHandler interface {
	// Recover 返回 true 时批次回到待执行状态并重新投递，仍受 MaxRetries 约束。
	Recover(ctx context.Context, task *Task, cause error) (bool, error)
}

// RetryOnCodes 对列出的路由器错误码重新排队，典型用法是 PAUSED：暂停解除后批次可以再次提交。
type RetryOnCodes []xerrors.Code

// Recover 实现 RecoveryHandler。
func (codes RetryOnCodes) Recover(_ context.Context, _ *Task, cause error) (bool, error) {
	code := router.ErrorCode(cause)
	for _, c := range codes {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}
