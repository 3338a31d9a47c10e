package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"renderbridge/internal/httpkit"
	"renderbridge/internal/models"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/worker/processor"
	"renderbridge/internal/worker/util"
)

// PostJob validates the request, stores it as QUEUED and enqueues its id.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpkit.MaxBodyBytes))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "jobs.read", "failed to read request body")
	}
	req, err := processor.Decode(body)
	if err != nil {
		return err
	}
	if h.validator != nil {
		if _, err := h.validator.Parse(ctx, req); err != nil {
			return err
		}
	}

	job := &models.Job{ID: util.NewID("job"), Request: body}
	if err := h.jobs.Create(ctx, job); err != nil {
		return err
	}
	if err := h.queue.Push(ctx, job.ID); err != nil {
		// Nothing will ever pop this record, so it must not stay QUEUED.
		if ferr := h.jobs.Finish(ctx, job.ID, models.JobFailed, nil, "", "enqueue failed: "+err.Error()); ferr != nil {
			h.log.LogError(ctx, "failed to mark unqueued job failed", ferr, "job_id", job.ID)
		}
		return err
	}

	h.log.FromContext(ctx).Info("job queued", "job_id", job.ID)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job": map[string]any{
			"id":         job.ID,
			"status":     job.Status,
			"created_at": job.CreatedAt,
		},
	})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	status := models.JobStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		limit = v
	}

	jobs, err := h.jobs.List(r.Context(), status, limit)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

// GetJob returns the record with its stored run response.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
	return nil
}
