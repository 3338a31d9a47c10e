package worker

import (
	"context"
	"encoding/json"
	"time"

	"renderbridge/internal/models"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/worker/processor"
)

// Runner executes one request body.
type Runner interface {
	RunRaw(ctx context.Context, body []byte) (*processor.Response, error)
}

// JobStore is the job-record side of the worker.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status models.JobStatus, response json.RawMessage, renderJobID, errMsg string) error
}

// Queue hands out job ids.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

type Deps struct {
	Runner      Runner
	Jobs        JobStore
	Queue       Queue
	Concurrency int
	PopTimeout  time.Duration
	Log         *logger.Logger
}
