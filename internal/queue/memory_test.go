package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, &models.Task{JobID: id, Workflow: models.WorkflowManual}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Errorf("expected 3 queued tasks, got %d", q.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(ctx, time.Second)
		if err != nil || task == nil || task.JobID != want {
			t.Fatalf("expected %s, got %+v (%v)", want, task, err)
		}
	}
}

func TestMemoryQueueDequeueTimeout(t *testing.T) {
	q := NewMemoryQueue(1)
	task, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	if task != nil || err != nil {
		t.Fatalf("expected (nil, nil) on timeout, got %+v, %v", task, err)
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Close()
	_ = q.Close()

	if err := q.Enqueue(context.Background(), &models.Task{JobID: "x"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on enqueue, got %v", err)
	}
	if _, err := q.Dequeue(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on dequeue, got %v", err)
	}
}

func TestMemoryQueueEnqueueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Enqueue(context.Background(), &models.Task{JobID: "fills-buffer"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, &models.Task{JobID: "blocked"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
