package queue

import (
	"context"
	"sync"
	"time"

	"github.com/bobarin/storyreel/internal/models"
)

// MemoryQueue is a buffered in-process queue for single-instance deployments.
type MemoryQueue struct {
	tasks     chan *models.Task
	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryQueue{
		tasks: make(chan *models.Task, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *models.Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		return task, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *MemoryQueue) Len() int {
	return len(q.tasks)
}
