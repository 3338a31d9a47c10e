package handlers

import (
	"io"
	"net/http"

	"renderbridge/internal/httpkit"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/worker/processor"
)

type runError struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// runResult is the /run body. A failed run keeps the partial response next to
// the error so callers still see the job id.
type runResult struct {
	*processor.Response
	Error *runError `json:"error,omitempty"`
}

// PostRun runs the request inline and answers with the run response.
func (h *Handler) PostRun(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httpkit.MaxBodyBytes))
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "run.read", "failed to read request body")
	}

	resp, runErr := h.runner.RunRaw(r.Context(), body)
	if resp == nil {
		resp = &processor.Response{ImageURLs: []string{}, VideoURLs: []string{}}
	}
	if runErr == nil {
		httpkit.WriteJSON(w, http.StatusOK, runResult{Response: resp})
		return nil
	}

	log := h.log.FromContext(r.Context())
	status := errors.GetHTTPStatus(runErr)
	if status >= 500 {
		log.Error("run failed", "error", runErr.Error(), "render_job_id", resp.JobID)
	} else {
		log.Warn("run rejected", "error", runErr.Error())
	}

	httpkit.WriteJSON(w, status, runResult{
		Response: resp,
		Error:    &runError{Code: errors.GetCode(runErr), Message: runErr.Error()},
	})
	return nil
}
