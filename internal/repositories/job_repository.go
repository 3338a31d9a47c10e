package repositories

import (
	"context"
	"encoding/json"
	"time"

	"renderbridge/internal/httpkit"
	"renderbridge/internal/models"
	"renderbridge/internal/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type JobRepository struct {
	db DB
}

func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts j as QUEUED and fills in CreatedAt.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	j.Status = models.JobQueued
	err := r.db.QueryRow(ctx, `
		INSERT INTO jobs (id, status, request_json)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, j.ID, string(j.Status), []byte(j.Request)).Scan(&j.CreatedAt)
	if err != nil {
		return httpkit.FromPg(err, "job", j.ID)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var (
		j                         models.Job
		status                    string
		request, response         []byte
		renderJobID, errorMessage *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, status, request_json, response_json, render_job_id, error, created_at, started_at, finished_at
		FROM jobs
		WHERE id=$1
	`, id).Scan(
		&j.ID,
		&status,
		&request,
		&response,
		&renderJobID,
		&errorMessage,
		&j.CreatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	if err != nil {
		return nil, httpkit.FromPg(err, "job", id)
	}

	j.Status = models.JobStatus(status)
	j.Request = json.RawMessage(request)
	if len(response) > 0 {
		j.Response = json.RawMessage(response)
	}
	if renderJobID != nil {
		j.RenderJobID = *renderJobID
	}
	if errorMessage != nil {
		j.Error = *errorMessage
	}
	return &j, nil
}

// List returns job summaries, newest first. An empty status lists all.
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if status != "" && !status.Valid() {
		return nil, errors.ValidationField("status", "unknown job status: "+string(status))
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, status, COALESCE(render_job_id,''), created_at, started_at, finished_at
		FROM jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, httpkit.FromPg(err, "job", "")
	}
	defer rows.Close()

	out := make([]models.Job, 0, limit)
	for rows.Next() {
		var (
			j models.Job
			s string
		)
		if err := rows.Scan(&j.ID, &s, &j.RenderJobID, &j.CreatedAt, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, httpkit.FromPg(err, "job", "")
		}
		j.Status = models.JobStatus(s)
		out = append(out, j)
	}
	return out, httpkit.FromPg(rows.Err(), "job", "")
}

// MarkRunning moves a QUEUED job to RUNNING. A job in any other state is a
// conflict, which keeps a redelivered id from running twice.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status='RUNNING', started_at=$2
		WHERE id=$1 AND status='QUEUED'
	`, id, time.Now().UTC())
	if err != nil {
		return httpkit.FromPg(err, "job", id)
	}
	if cmd.RowsAffected() == 0 {
		return errors.Conflict("job is not queued: " + id).WithField("job_id", id)
	}
	return nil
}

// Finish stores the terminal status and result of a job.
func (r *JobRepository) Finish(ctx context.Context, id string, status models.JobStatus, response json.RawMessage, renderJobID, errMsg string) error {
	if !status.Terminal() {
		return errors.Validationf("status %s is not terminal", status)
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status=$2, response_json=$3, render_job_id=NULLIF($4,''), error=NULLIF($5,''), finished_at=$6
		WHERE id=$1
	`, id, string(status), []byte(response), renderJobID, errMsg, time.Now().UTC())
	if err != nil {
		return httpkit.FromPg(err, "job", id)
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("job", id)
	}
	return nil
}
