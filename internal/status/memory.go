package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
)

// MemoryStore keeps jobs in process memory. Each job id has a one-slot
// semaphore so a stuck writer surfaces as ErrLockTimeout instead of blocking
// forever.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]models.Job
	locks sync.Map // job id -> chan struct{}
	wait  time.Duration
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]models.Job),
		wait: LockWait,
		now:  time.Now,
	}
}

// WithLockWait overrides the bounded lock wait.
func (s *MemoryStore) WithLockWait(d time.Duration) *MemoryStore {
	s.wait = d
	return s
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) Update(ctx context.Context, jobID string, update models.JobUpdate) error {
	unlock, err := s.lock(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		job = models.Job{ID: jobID}
	}

	update.Apply(&job, s.now().UTC())

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) lock(ctx context.Context, jobID string) (func(), error) {
	v, _ := s.locks.LoadOrStore(jobID, make(chan struct{}, 1))
	sem := v.(chan struct{})

	timer := time.NewTimer(s.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		metrics.IncLockTimeout("memory")
		return nil, fmt.Errorf("%w: job %s", ErrLockTimeout, jobID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
