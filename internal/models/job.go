package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobDone, JobFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final status.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is an asynchronous run record. Request holds the inbound body as
// received; Response holds the run result once the job is terminal.
type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	RenderJobID string          `json:"render_job_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}
