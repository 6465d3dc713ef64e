package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stackdocs-backend/internal/shared/metrics"
	"stackdocs-backend/internal/shared/telemetry"
)

var (
	// ErrQueueFull is returned when the in-process buffer is saturated.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// MemoryQueue is an in-process queue drained by a fixed worker pool.
type MemoryQueue struct {
	mu      sync.RWMutex
	ch      chan string
	closed  bool
	wg      sync.WaitGroup
	handler BodyHandler
}

// NewMemoryQueue starts workers goroutines feeding handler.
func NewMemoryQueue(workers, buffer int, handler BodyHandler) *MemoryQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 256
	}
	q := &MemoryQueue{ch: make(chan string, buffer), handler: handler}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	return q
}

// Send buffers msg for a worker. It never blocks.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- string(payload):
		return nil
	default:
		metrics.IncPipelineJobsDropped()
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for buffered ones to finish.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *MemoryQueue) work(id int) {
	defer q.wg.Done()
	for body := range q.ch {
		if err := q.handler(context.Background(), body); err != nil {
			telemetry.Error("queue.memory_handler_failed", map[string]any{
				"worker": id,
				"error":  err.Error(),
			})
		}
	}
}

var _ Client = (*MemoryQueue)(nil)
