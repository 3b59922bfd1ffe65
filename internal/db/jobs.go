package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/metrics"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/status"
	"github.com/lib/pq"
)

// Postgres error raised when lock_timeout expires
const lockNotAvailable = "55P03"

// StatusStore is the Postgres status.Store. Writers take a per-job advisory
// lock and the row lock under a transaction-scoped lock_timeout.
type StatusStore struct {
	db  *DB
	now func() time.Time
}

var _ status.Store = (*StatusStore)(nil)

func NewStatusStore(db *DB) *StatusStore {
	return &StatusStore{db: db, now: time.Now}
}

func (s *StatusStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	query := `
		SELECT id, status, stage, error, video_url, story_text, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	job := &models.Job{}
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &job.Stage, &job.Error,
		&job.VideoURL, &job.StoryText, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (s *StatusStore) Update(ctx context.Context, jobID string, update models.JobUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", status.LockWait.Milliseconds())
	if _, err := tx.ExecContext(ctx, lockTimeout); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	// Row locks cannot cover a job that has no row yet.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, jobID); err != nil {
		return s.wrapLockErr(jobID, err)
	}

	job := models.Job{ID: jobID}
	err = tx.QueryRowContext(ctx, `
		SELECT status, stage, error, video_url, story_text, created_at
		FROM jobs
		WHERE id = $1
		FOR UPDATE
	`, jobID).Scan(&job.Status, &job.Stage, &job.Error, &job.VideoURL, &job.StoryText, &job.CreatedAt)
	if err != nil && err != sql.ErrNoRows {
		return s.wrapLockErr(jobID, err)
	}

	update.Apply(&job, s.now().UTC())

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, status, stage, error, video_url, story_text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			error = EXCLUDED.error,
			video_url = EXCLUDED.video_url,
			story_text = EXCLUDED.story_text,
			updated_at = EXCLUDED.updated_at
	`, job.ID, job.Status, job.Stage, job.Error, job.VideoURL, job.StoryText, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return s.wrapLockErr(jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job update: %w", err)
	}
	return nil
}

func (s *StatusStore) wrapLockErr(jobID string, err error) error {
	if isLockTimeout(err) {
		metrics.IncLockTimeout("postgres")
		return fmt.Errorf("%w: job %s: %w", status.ErrLockTimeout, jobID, err)
	}
	return fmt.Errorf("failed to update job %s: %w", jobID, err)
}

func isLockTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable
}
