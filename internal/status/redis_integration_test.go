//go:build integration

package status

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("bad TEST_REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	s := NewRedisStore(client, zerolog.Nop())
	id := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, jobKey(id)) })

	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = s.Update(ctx, id, models.JobUpdate{Status: models.JobStatusPending, Stage: models.StageManualQueued})
	_ = s.Update(ctx, id, models.JobUpdate{Status: models.JobStatusFailed, Error: "Manual compilation error: boom"})

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.Status != models.JobStatusFailed || job.Stage != models.StageManualQueued || job.Error == "" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestRedisStoreLockTimeout(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	s := NewRedisStore(client, zerolog.Nop()).WithLockWait(100 * time.Millisecond)
	id := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, jobKey(id), lockKey(id)) })

	if err := client.Set(ctx, lockKey(id), "someone-else", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}

	err := s.Update(ctx, id, models.JobUpdate{Status: models.JobStatusProcessing})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	// The foreign lock must survive our failed attempt
	if v, _ := client.Get(ctx, lockKey(id)).Result(); v != "someone-else" {
		t.Errorf("foreign lock was released: %q", v)
	}
}
