package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/go-redis/redis/v8"
)

// QueueVideoJobs is the Redis list that holds pending tasks.
const QueueVideoJobs = "queue:video_jobs"

// ErrClosed is returned by a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue hands tasks from the HTTP layer to the worker pool. Dequeue returns
// (nil, nil) when nothing arrived within timeout.
type Queue interface {
	Enqueue(ctx context.Context, task *models.Task) error
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Task, error)
	Close() error
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

type RedisQueue struct {
	client *redis.Client
	name   string
}

var _ Queue = (*RedisQueue)(nil)

// Connect parses the URL and pings the server.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, name: QueueVideoJobs}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return q.client.RPush(ctx, q.name, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Task, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil // No task available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var task models.Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}
