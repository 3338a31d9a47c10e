// Package queue carries asynchronous job ids between the API and workers on
// a redis list.
package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"renderbridge/internal/pkg/errors"
)

// RedisQueue is a FIFO of job ids: LPUSH on one end, BRPOP on the other.
type RedisQueue struct {
	rdb       redis.Cmdable
	queueName string
}

func NewRedisQueue(rdb redis.Cmdable, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Name returns the redis key of the list.
func (q *RedisQueue) Name() string {
	return q.queueName
}

// Push enqueues jobID.
func (q *RedisQueue) Push(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, q.queueName, jobID).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "failed to enqueue job").
			WithField("job_id", jobID)
	}
	return nil
}

// Pop blocks for at most timeout waiting for a job id. It returns "" with a
// nil error when the wait expires with the queue empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Len reports the number of waiting ids.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
