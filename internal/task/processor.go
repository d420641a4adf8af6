package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/observability/alerting"
	"OpenUTR/internal/observability/metrics"
	"OpenUTR/internal/router"
	"OpenUTR/pkg/logger"
)

// Executor 定义了处理器提交批次所需的能力，由开发网实现。
type Executor interface {
	Exec(ctx context.Context, caller common.Address, value *big.Int, outputs []router.Output, actions []router.Action) (*router.Receipt, error)
}

// Processor 负责从队列消费批次并交给路由器执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置不可重试失败的补救策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动批次处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置批次消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, batchID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, batchID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) ||
			stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("跳过批次", slog.String("batch_id", batchID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取批次失败", slog.Any("error", err), slog.String("batch_id", batchID))
		p.emitAlert(ctx, &Task{ID: batchID}, CodeTaskProcessing, err, "claim")
		return err
	}
	metrics.ObserveTaskTransition(string(StatusRunning))

	receipt, execErr := p.executor.Exec(ctx, task.Caller, task.Value, task.Outputs, task.Actions)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}

	record := ExecutionResult{Refund: new(big.Int)}
	if receipt != nil {
		record.Outputs = receipt.Outputs
		if receipt.Refund != nil {
			record.Refund = receipt.Refund
		}
	}
	if err := p.store.MarkSucceeded(ctx, task.ID, record); err != nil {
		// 批次已经提交到世界状态，不能再次执行；只记录并告警。
		wrapped := xerrors.Wrap(CodeTaskProcessing, err, fmt.Sprintf("批次 %s 已提交但回执写入失败", task.ID))
		p.logger.Error("记录批次回执失败", slog.Any("error", wrapped), slog.String("batch_id", task.ID))
		p.emitAlert(ctx, task, CodeTaskProcessing, wrapped, "persist_receipt")
		return nil
	}
	metrics.ObserveTaskTransition(string(StatusSucceeded))
	logger.Audit().Info("批次执行成功",
		slog.String("batch_id", task.ID),
		slog.String("caller", task.Caller.Hex()),
		slog.Int("actions", len(task.Actions)),
		slog.String("refund", record.Refund.String()),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := router.ErrorCode(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.AttributesOf(code).Retryable

	if !retryable && p.recovery != nil {
		retry, recErr := p.recovery.Recover(ctx, task, execErr)
		if recErr != nil {
			wrapped := xerrors.Wrap(CodeTaskCompensate, recErr, "批次补救失败")
			p.logger.Error("执行补救逻辑失败", slog.Any("error", wrapped), slog.String("batch_id", task.ID))
			p.emitAlert(ctx, task, CodeTaskCompensate, wrapped, "compensate")
		}
		retryable = retry
	}
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), terminal); storeErr != nil {
		p.logger.Error("标记批次失败状态出错", slog.Any("error", storeErr), slog.String("batch_id", task.ID))
		return storeErr
	}
	logger.Audit().Warn("批次执行失败",
		slog.String("batch_id", task.ID),
		slog.String("caller", task.Caller.Hex()),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	switch {
	case terminal && retryable:
		metrics.ObserveTaskTransition(string(StatusFailed))
		p.emitAlert(ctx, task, CodeTaskExhausted, execErr, "exhausted")
	case terminal:
		metrics.ObserveTaskTransition(string(StatusFailed))
		if xerrors.AttributesOf(code).Alert {
			p.emitAlert(ctx, task, code, execErr, "terminal")
		}
	default:
		metrics.ObserveTaskTransition("retrying")
		p.emitAlert(ctx, task, code, execErr, "retry")
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("批次 %s 重投失败", task.ID))
		}
		p.logger.Debug("批次已重新排队", slog.String("batch_id", task.ID), slog.Int("attempts", task.Attempts))
	}
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	severity := attrs.Severity
	if e, ok := xerrors.From(cause); ok && e.Code() == code {
		severity = e.Severity()
	}
	metadata := map[string]string{"stage": stage}
	if cause != nil {
		message = cause.Error()
		for k, v := range xerrors.MetadataOf(cause) {
			metadata[k] = v
		}
		metadata["cause"] = cause.Error()
		if rc := router.ErrorCode(cause); rc != "" && rc != code {
			metadata["router_code"] = string(rc)
		}
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   severity,
		BatchID:    task.ID,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("batch_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
