package worker

import (
	"context"
	"errors"
	"time"

	"github.com/bobarin/storyreel/internal/logging"
	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TaskProcessor runs one dequeued task to completion.
type TaskProcessor interface {
	Process(ctx context.Context, task *models.Task) error
}

const (
	dequeueTimeout = 5 * time.Second
	errorBackoff   = time.Second
)

// Worker pulls tasks off the queue with a fixed number of consumers.
type Worker struct {
	queue     queue.Queue
	processor TaskProcessor
	logger    zerolog.Logger
	pollWait  time.Duration
}

func New(q queue.Queue, processor TaskProcessor, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:     q,
		processor: processor,
		logger:    logging.Component(logger, "worker"),
		pollWait:  dequeueTimeout,
	}
}

// Run blocks until ctx is cancelled or the queue is closed. Cancelling ctx
// stops consumers from taking new tasks; tasks already running finish on a
// context that is not cancelled with it.
func (w *Worker) Run(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	w.logger.Info().Int("concurrency", concurrency).Msg("worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := i
		g.Go(func() error {
			return w.consume(gctx, consumer)
		})
	}

	err := g.Wait()
	w.logger.Info().Msg("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, consumer int) error {
	logger := w.logger.With().Int("consumer", consumer).Logger()
	detached := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.queue.Dequeue(ctx, w.pollWait)
		switch {
		case errors.Is(err, queue.ErrClosed):
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			logger.Error().Err(err).Msg("failed to dequeue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorBackoff):
			}
			continue
		case task == nil:
			continue
		}

		logger.Info().Str("job_id", task.JobID).Str("workflow", string(task.Workflow)).Msg("processing task")
		if err := w.processor.Process(detached, task); err != nil {
			logger.Warn().Err(err).Str("job_id", task.JobID).Msg("task failed")
		}
	}
}
