//go:build integration

package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/status"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) (*StatusStore, *DB) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	database, err := New(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStatusStore(database), database
}

func TestStatusStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, database := newTestStore(t)
	id := uuid.NewString()
	t.Cleanup(func() { database.Exec(`DELETE FROM jobs WHERE id = $1`, id) })

	if _, err := s.Get(ctx, id); !errors.Is(err, status.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	updates := []models.JobUpdate{
		{Status: models.JobStatusPending, Stage: models.StageAutoQueued},
		{Status: models.JobStatusProcessing, Stage: models.StageAutoUploading},
		{Status: models.JobStatusCompleted, Stage: models.StageAutoDone, VideoURL: "https://drive/x", StoryText: "A B"},
	}
	for _, u := range updates {
		if err := s.Update(ctx, id, u); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.JobStatusCompleted || job.VideoURL != "https://drive/x" || job.StoryText != "A B" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestStatusStoreLockTimeout(t *testing.T) {
	ctx := context.Background()
	s, database := newTestStore(t)
	id := uuid.NewString()
	t.Cleanup(func() { database.Exec(`DELETE FROM jobs WHERE id = $1`, id) })

	if err := s.Update(ctx, id, models.JobUpdate{Status: models.JobStatusPending}); err != nil {
		t.Fatal(err)
	}

	holder, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Rollback()
	if _, err := holder.ExecContext(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, id); err != nil {
		t.Fatal(err)
	}

	err = s.Update(ctx, id, models.JobUpdate{Status: models.JobStatusFailed})
	if !errors.Is(err, status.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
