// Package worker consumes queued job ids and runs them through the processor.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"renderbridge/internal/models"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
)

const (
	popErrorBackoff = time.Second
	finishTimeout   = 10 * time.Second
)

// Run starts d.Concurrency consumers and blocks until ctx is canceled. Every
// consumer runs one job at a time; concurrent jobs never share a stream.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	n := d.Concurrency
	if n < 1 {
		n = 1
	}
	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	log.Info("worker started", "consumers", n, "pop_timeout", popTimeout.String())

	g, ctx := errgroup.WithContext(ctx)
	for i := range n {
		c := &consumer{d: d, log: log.WithFields(map[string]any{"consumer": i}), popTimeout: popTimeout}
		g.Go(func() error { return c.loop(ctx) })
	}
	return g.Wait()
}

type consumer struct {
	d          Deps
	log        *logger.Logger
	popTimeout time.Duration
}

func (c *consumer) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.log.Info("worker context canceled, stopping")
			return nil
		}

		jobID, err := c.d.Queue.Pop(ctx, c.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(popErrorBackoff):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		c.handle(ctx, jobID)
	}
}

// handle runs one job. Its outcome only ever lands in the job record; a
// failing job never stops the consumer.
func (c *consumer) handle(ctx context.Context, jobID string) {
	jobCtx := logger.ContextWithJobID(ctx, jobID)
	log := c.log.WithJobID(jobID)

	if err := c.d.Jobs.MarkRunning(jobCtx, jobID); err != nil {
		if errors.IsConflict(err) {
			log.Warn("skipping job that is not queued")
			return
		}
		c.log.LogError(jobCtx, "failed to mark job running", err)
		return
	}

	rec, err := c.d.Jobs.Get(jobCtx, jobID)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Warn("job record disappeared after it was marked running")
			return
		}
		c.log.LogError(jobCtx, "failed to load job", err)
		c.finish(jobCtx, jobID, models.JobFailed, nil, "", err.Error())
		return
	}

	log.Info("processing job")
	start := time.Now()

	resp, runErr := c.d.Runner.RunRaw(jobCtx, rec.Request)

	var body json.RawMessage
	renderJobID := ""
	if resp != nil {
		renderJobID = resp.JobID
		if b, err := json.Marshal(resp); err == nil {
			body = b
		}
	}

	if runErr != nil {
		args := []any{
			"error", runErr.Error(),
			"render_job_id", renderJobID,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case errors.IsValidation(runErr):
			// The stored request no longer resolves, e.g. its template was deleted.
			log.Warn("job rejected", args...)
		case errors.IsTimeout(runErr):
			log.Warn("job timed out", args...)
		default:
			log.Error("job failed", args...)
		}
		c.finish(jobCtx, jobID, models.JobFailed, body, renderJobID, runErr.Error())
		return
	}

	log.Info("job completed",
		"render_job_id", renderJobID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	c.finish(jobCtx, jobID, models.JobDone, body, renderJobID, "")
}

// finish stores the result even when ctx was canceled mid-run.
func (c *consumer) finish(ctx context.Context, jobID string, status models.JobStatus, body json.RawMessage, renderJobID, errMsg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := c.d.Jobs.Finish(ctx, jobID, status, body, renderJobID, errMsg); err != nil {
		c.log.LogError(ctx, fmt.Sprintf("failed to store %s result", status), err)
	}
}
