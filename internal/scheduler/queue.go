package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when submitting to a closed scheduler.
var ErrClosed = errors.New("scheduler closed")

// queue is a bounded in-memory queue with context-aware operations.
type queue struct {
	ch     chan task
	mu     sync.RWMutex
	closed bool
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan task, capacity)}
}

// enqueue pushes a task or returns if the context ends or the queue is closed.
func (q *queue) enqueue(ctx context.Context, t task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- t:
		return nil
	}
}

// dequeue pops the next task; ok is false once the queue is closed and drained.
func (q *queue) dequeue() (task, bool) {
	t, ok := <-q.ch
	return t, ok
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
