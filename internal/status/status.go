// Package status holds the pollable job-progress records.
//
// Every Update is an atomic read-modify-write on one job id, guarded by a
// per-id lock with a bounded wait. Reads never take the write lock.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/bobarin/storyreel/internal/models"
)

var (
	// ErrNotFound is returned by Get for an id that was never written.
	ErrNotFound = errors.New("job not found")
	// ErrLockTimeout means another writer held the job's lock for longer than
	// the bounded wait. Callers may retry.
	ErrLockTimeout = errors.New("timed out waiting for job status lock")
)

// LockWait bounds how long an Update waits for a job's lock.
const LockWait = 10 * time.Second

// Store is the job status contract shared by every backend.
type Store interface {
	Get(ctx context.Context, jobID string) (*models.Job, error)
	Update(ctx context.Context, jobID string, update models.JobUpdate) error
}
