package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizcheck-backend/internal/config"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// ResultsQueue is the Redis list of pending result mails.
type ResultsQueue struct {
	rdb *redis.Client
	key string
}

// NewResultsQueue creates a queue on config.WorkerKey.SendResultsQueue.
func NewResultsQueue(rdb *redis.Client) *ResultsQueue {
	return &ResultsQueue{rdb: rdb, key: config.WorkerKey.SendResultsQueue}
}

// Push appends a job to the tail of the queue.
func (q *ResultsQueue) Push(ctx context.Context, job model.ResultJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

// Pop blocks up to timeout for the head job. It returns nil, nil when the
// queue stayed empty.
func (q *ResultsQueue) Pop(ctx context.Context, timeout time.Duration) (*model.ResultJob, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}

	var job model.ResultJob
	if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedJob, err)
	}
	return &job, nil
}

// Len returns the number of pending jobs.
func (q *ResultsQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
