package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	keyPrefix = "job_status:"

	// A crashed writer's lock expires after this long
	lockTTL = 30 * time.Second

	lockPollInterval = 50 * time.Millisecond
)

// releaseLock deletes the lock only if we still own it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps each job as a JSON string and serializes writers per job
// with a SETNX lock.
type RedisStore struct {
	client *redis.Client
	wait   time.Duration
	logger zerolog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		wait:   LockWait,
		logger: logger.With().Str("component", "status").Str("backend", "redis").Logger(),
	}
}

// WithLockWait overrides the bounded lock wait.
func (s *RedisStore) WithLockWait(d time.Duration) *RedisStore {
	s.wait = d
	return s
}

func jobKey(jobID string) string  { return keyPrefix + jobID }
func lockKey(jobID string) string { return keyPrefix + jobID + ":lock" }

func (s *RedisStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Update(ctx context.Context, jobID string, update models.JobUpdate) error {
	token, err := s.acquire(ctx, jobID)
	if err != nil {
		return err
	}
	defer func() {
		// Release even if the caller's context is already done
		if err := releaseLock.Run(context.Background(), s.client, []string{lockKey(jobID)}, token).Err(); err != nil && err != redis.Nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to release status lock")
		}
	}()

	job, err := s.Get(ctx, jobID)
	if err == ErrNotFound {
		job = &models.Job{ID: jobID}
	} else if err != nil {
		return err
	}

	update.Apply(job, time.Now().UTC())

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job status: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(jobID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write job status: %w", err)
	}
	return nil
}

func (s *RedisStore) acquire(ctx context.Context, jobID string) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(s.wait)

	for {
		ok, err := s.client.SetNX(ctx, lockKey(jobID), token, lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire status lock: %w", err)
		}
		if ok {
			return token, nil
		}

		if time.Now().After(deadline) {
			metrics.IncLockTimeout("redis")
			return "", fmt.Errorf("%w: job %s", ErrLockTimeout, jobID)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
