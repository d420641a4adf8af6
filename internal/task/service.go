package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "OpenUTR/internal/errors"
	"OpenUTR/internal/router"
	"OpenUTR/pkg/logger"
)

// Service 负责批次的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造批次服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 校验并持久化一笔批次，然后推送到队列。携带已存在 ID 的请求直接返回原批次。
func (s *Service) Submit(ctx context.Context, req BatchRequest) (*Task, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "批次服务未初始化")
	}

	batchID := strings.TrimSpace(req.ID)
	if batchID != "" {
		task, err := s.store.Get(ctx, batchID)
		if err == nil {
			return task, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		batchID = uuid.NewString()
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	task := &Task{
		ID:         batchID,
		Caller:     req.Caller,
		Value:      value,
		Outputs:    append([]router.Output(nil), req.Outputs...),
		Actions:    append([]router.Action(nil), req.Actions...),
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			existing, getErr := s.store.Get(ctx, batchID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrTaskNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, batchID); err != nil {
		logger.L().Error("批次入队失败", slog.Any("error", err), slog.String("batch_id", batchID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布批次到队列失败")
		_ = s.store.MarkFailed(ctx, batchID, CodeTaskPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("批次入队成功",
		slog.String("batch_id", batchID),
		slog.String("caller", task.Caller.Hex()),
		slog.Int("actions", len(task.Actions)),
		slog.Int("outputs", len(task.Outputs)),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

func validateRequest(req BatchRequest) error {
	if len(req.Actions) == 0 && len(req.Outputs) == 0 {
		return xerrors.New(CodeTaskValidation, "批次至少需要一个动作或输出")
	}
	if req.Caller == (common.Address{}) {
		return xerrors.New(CodeTaskValidation, "调用方地址不能为空")
	}
	if !validUint256(req.Value) {
		return xerrors.New(CodeTaskValidation, "附带金额必须是非负的 uint256")
	}
	for i, out := range req.Outputs {
		if !validUint256(out.MinAmount) || !validUint256(out.ID) {
			return xerrors.Newf(CodeTaskValidation, "输出 %d 的最小到账量或 ID 必须是非负的 uint256", i)
		}
	}
	for i, action := range req.Actions {
		for j, in := range action.Inputs {
			if !validUint256(in.Amount) || !validUint256(in.ID) {
				return xerrors.Newf(CodeTaskValidation, "动作 %d 的输入 %d 金额或 ID 必须是非负的 uint256", i, j)
			}
		}
	}
	return nil
}

// validUint256 判断 v 是否为空或落在 [0, 2^256) 内。
func validUint256(v *big.Int) bool {
	return v == nil || (v.Sign() >= 0 && v.BitLen() <= 256)
}

// Get 返回指定批次的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "批次存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的批次列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "批次存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的批次统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "批次存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 轮询批次状态直到结束或 ctx 取消。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Finished() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
