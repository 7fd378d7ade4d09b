// Package queue implements a bounded-concurrency task queue fed
// incrementally by a streaming producer. Tasks are accepted while the queue
// is open, executed with at most limit running at once, and drained to an
// idle signal after Close.
package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/metrics"
)

// ErrClosed is returned by Add after Close has been called.
var ErrClosed = fmt.Errorf("queue: closed")

// Task is one unit of work. The returned error is logged and swallowed at
// the queue boundary; tasks that care about failure semantics handle them
// internally.
type Task func() error

// Queue runs tasks with a hard concurrency ceiling and FIFO start order.
// Completion order is unordered.
type Queue struct {
	limit  int
	logger *zap.Logger

	mu      sync.Mutex
	backlog []Task
	running int
	closed  bool

	idleOnce sync.Once
	idle     chan struct{}
}

// New creates a queue executing at most limit tasks concurrently. A limit
// below 1 is treated as 1.
func New(limit int, logger *zap.Logger) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		limit:  limit,
		logger: logger,
		idle:   make(chan struct{}),
	}
}

// Add enqueues a task, starting it immediately if a slot is free. It fails
// once the queue is closed; already-queued tasks are unaffected by Close.
func (q *Queue) Add(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.backlog = append(q.backlog, task)
	metrics.QueueTasksPending.Inc()
	q.pump()
	return nil
}

// Close stops the queue from accepting new tasks. Idempotent. In-flight and
// queued tasks keep running to completion.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.checkIdle()
}

// WaitForIdle blocks until the queue is closed and every accepted task has
// settled, or until ctx is done. Safe to call from multiple goroutines and
// before or after Close.
func (q *Queue) WaitForIdle(ctx context.Context) error {
	select {
	case <-q.idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump starts queued tasks while slots are free. Caller must hold q.mu.
func (q *Queue) pump() {
	for q.running < q.limit && len(q.backlog) > 0 {
		task := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.running++
		metrics.QueueTasksPending.Dec()
		metrics.QueueTasksRunning.Inc()

		go q.run(task)
	}
}

func (q *Queue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Queued task panicked", zap.Any("panic", r))
		}

		q.mu.Lock()
		q.running--
		metrics.QueueTasksRunning.Dec()
		q.pump()
		q.checkIdle()
		q.mu.Unlock()
	}()

	if err := task(); err != nil {
		q.logger.Error("Queued task failed", zap.Error(err))
	}
}

// checkIdle resolves the idle signal once the queue is closed with nothing
// queued or running. Caller must hold q.mu; the re-check under the same lock
// as Close avoids declaring idle while a concurrent Add still holds a task.
func (q *Queue) checkIdle() {
	if !q.closed || q.running > 0 || len(q.backlog) > 0 {
		return
	}
	q.idleOnce.Do(func() { close(q.idle) })
}
