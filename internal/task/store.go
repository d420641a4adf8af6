package task

import (
	"context"

	xerrors "OpenUTR/internal/errors"
)

// Store 抽象了批次任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 将待执行的任务置为运行中并增加尝试次数。
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	// MarkFailed 记录失败原因。terminal 为 false 时任务回到待执行状态，等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
