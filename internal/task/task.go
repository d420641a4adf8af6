package task

import (
	stdErrors "errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/router"
)

// Status 表示批次任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// BatchRequest 是提交给服务的一笔批次：调用方、附带的原生币以及输出与动作列表。
type BatchRequest struct {
	ID       string            `json:"id,omitempty"`
	Caller   common.Address    `json:"caller"`
	Value    *big.Int          `json:"value,omitempty"`
	Outputs  []router.Output   `json:"outputs"`
	Actions  []router.Action   `json:"actions"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ExecutionResult 保存批次提交后的回执。
type ExecutionResult struct {
	Refund  *big.Int       `json:"refund"`
	Outputs []router.Delta `json:"outputs"`
}

// Task 描述了排队执行的批次。
type Task struct {
	ID         string            `json:"id"`
	Caller     common.Address    `json:"caller"`
	Value      *big.Int          `json:"value"`
	Outputs    []router.Output   `json:"outputs"`
	Actions    []router.Action   `json:"actions"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *ExecutionResult  `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskCompleted 表示任务已经结束，不会再次执行。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "task already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrTaskExhausted 表示任务的重试次数已经耗尽。
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "task retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskCompensate xerrors.Code = "TASK_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "task already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:  "task retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "batch validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "failed to publish batch",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "batch execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskCompensate, xerrors.Attributes{
		Message:  "batch recovery failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// IsTaskError 判断错误是否为指定的任务错误。
func IsTaskError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrTaskNotFound):
		return target == CodeTaskNotFound
	case stdErrors.Is(err, ErrTaskConflict):
		return target == CodeTaskConflict
	case stdErrors.Is(err, ErrTaskCompleted):
		return target == CodeTaskCompleted
	case stdErrors.Is(err, ErrTaskExhausted):
		return target == CodeTaskExhausted
	}
	return false
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// Finished 判断任务是否已经到达终态。
func (t *Task) Finished() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// Touches 判断批次的输出或任一动作输入是否涉及 token。
func (t *Task) Touches(token common.Address) bool {
	for _, out := range t.Outputs {
		if out.Token == token {
			return true
		}
	}
	for _, action := range t.Actions {
		for _, in := range action.Inputs {
			if in.Token == token {
				return true
			}
		}
	}
	return false
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

func cloneTask(task *Task) *Task {
	clone := *task
	if task.Value != nil {
		clone.Value = new(big.Int).Set(task.Value)
	}
	clone.Outputs = append([]router.Output(nil), task.Outputs...)
	clone.Actions = append([]router.Action(nil), task.Actions...)
	if task.Result != nil {
		result := *task.Result
		result.Outputs = append([]router.Delta(nil), task.Result.Outputs...)
		clone.Result = &result
	}
	clone.Metadata = cloneMetadata(task.Metadata)
	return &clone
}
