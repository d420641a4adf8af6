package task

import (
	"context"
	"sync"

	xerrors "OpenUTR/internal/errors"
)

// MemoryQueue 使用 channel 模拟消息队列，用于开发网与测试。
type MemoryQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 将批次投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, batchID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- batchID:
		return nil
	}
}

// Len 返回尚未被消费的批次数量。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Consume 启动指定数量的工作协程消费队列中的批次，直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case batchID, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, batchID)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}
