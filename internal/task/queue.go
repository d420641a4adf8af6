package task

import (
	"context"
)

// Handler 处理来自消息队列的批次 ID。返回错误表示投递未完成，队列可按自身语义重投。
type Handler func(ctx context.Context, batchID string) error

// Producer 负责向队列投递批次。
type Producer interface {
	Publish(ctx context.Context, batchID string) error
	Close() error
}

// Consumer 负责从队列中消费批次。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
