package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskPipelineStage is the asynq task type for pipeline messages.
	TaskPipelineStage = "pipeline:stage"
	// AsynqQueue is the asynq queue pipeline tasks are placed on.
	AsynqQueue = "pipeline"
)

// AsynqClient enqueues messages as Redis-backed asynq tasks.
type AsynqClient struct {
	client *asynq.Client
}

// RedisOpt builds asynq connection options.
func RedisOpt(addr, password string) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: addr, Password: password}
}

// NewAsynqClient constructs an asynq-backed queue client.
func NewAsynqClient(addr, password string) *AsynqClient {
	return &AsynqClient{client: asynq.NewClient(RedisOpt(addr, password))}
}

// NewTask wraps a message as an asynq task. Stages record their own
// failures, so tasks are never retried.
func NewTask(msg Message) (*asynq.Task, error) {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("encode asynq message: %w", err)
	}
	return asynq.NewTask(TaskPipelineStage, payload, asynq.MaxRetry(0), asynq.Queue(AsynqQueue)), nil
}

// Send enqueues msg.
func (a *AsynqClient) Send(ctx context.Context, msg Message) error {
	task, err := NewTask(msg)
	if err != nil {
		return err
	}
	if _, err := a.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("asynq enqueue: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (a *AsynqClient) Close() error { return a.client.Close() }

// AsynqHandler adapts a BodyHandler to an asynq handler.
func AsynqHandler(h BodyHandler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, string(t.Payload()))
	})
}

var _ Client = (*AsynqClient)(nil)
