package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "OpenUTR/internal/errors"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现批次队列。取出的批次先移入处理中列表，
// 处理完成后再删除，进程异常退出时可由 Requeue 归还。
type RedisQueue struct {
	client     redis.UniversalClient
	queue      string
	processing string
	wait       time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return NewRedisQueueWithClient(client, cfg.Queue, cfg.BlockWait), nil
}

// NewRedisQueueWithClient 基于已有客户端构造队列。
func NewRedisQueueWithClient(client redis.UniversalClient, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = "openutr:batches"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, processing: queue + ":processing", wait: wait}
}

// Publish 将批次投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, batchID string) error {
	if err := q.client.LPush(ctx, q.queue, batchID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布批次失败")
	}
	return nil
}

// Requeue 将处理中列表里遗留的批次放回待处理队列，返回归还的数量。
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 归还批次失败")
		}
		moved++
	}
}

// Consume 通过 BLMOVE 从 Redis 获取批次。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.work(ctx, handler); err != nil {
				errCh <- err
			}
		}()
	}
	go func() {
		wg.Wait()
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		wg.Wait()
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return ctx.Err()
		}
		return err
	}
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		batchID, err := q.client.BLMove(ctx, q.queue, q.processing, "RIGHT", "LEFT", q.wait).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return err
			}
			return fmt.Errorf("Redis 取批次失败: %w", err)
		}
		if handlerErr := handler(ctx, batchID); handlerErr != nil {
			// 处理失败时放回队尾，稍后重试。
			_ = q.client.LPush(ctx, q.queue, batchID).Err()
		}
		_ = q.client.LRem(ctx, q.processing, 1, batchID).Err()
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
