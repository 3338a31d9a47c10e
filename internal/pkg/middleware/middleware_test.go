package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
)

func newBufferedLogger(level string) (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: level, Format: "json", Output: &buf}), &buf
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when well formed", "req-abc_123", true},
		{"replaced when it has spaces", "two words", false},
		{"replaced when too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, got, seen)
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/jobs", http.StatusAccepted, "INFO"},
		{"/health", http.StatusOK, "DEBUG"},
		{"/health", http.StatusServiceUnavailable, "ERROR"},
		{"/run", http.StatusUnprocessableEntity, "WARN"},
		{"/run", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %d", tt.path, tt.status), func(t *testing.T) {
			log, buf := newBufferedLogger("debug")
			handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, tt.path, entry["path"])
			assert.EqualValues(t, tt.status, entry["status"])
			assert.EqualValues(t, 2, entry["size"])
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	_, _ = sr.Write([]byte("a"))
	sr.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, sr.status, "implicit 200 sticks")
	assert.Equal(t, 1, sr.size)
	assert.Same(t, rec, sr.Unwrap())
}

func TestRecovery(t *testing.T) {
	log, buf := newBufferedLogger("error")
	handler := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil graph")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(errors.CodeInternal))
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "nil graph")

	abort := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/assets/x", nil))
	})
}

func TestWrapHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     errors.Code
		logLevel string
	}{
		{"not found", errors.NotFound("job", "job_1"), http.StatusNotFound, errors.CodeNotFound, "WARN"},
		{"upload", errors.Upload("face.png", fmt.Errorf("http 500")), http.StatusBadGateway, errors.CodeUpload, "ERROR"},
		{"uncoded", fmt.Errorf("boom"), http.StatusInternalServerError, errors.CodeInternal, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferedLogger("info")
			h := WrapHandler(log, func(http.ResponseWriter, *http.Request) error { return tt.err })

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job_1", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.err.Error(), body.Error.Message)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.logLevel, entry["level"])
		})
	}

	ok := WrapHandler(logger.NewDefault(), func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/templates/t", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeValidation, "invalid image", map[string]any{
		"field": "images",
		"cause": fmt.Errorf("bad base64"),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error": {
		"code": "VALIDATION_ERROR",
		"message": "invalid image",
		"details": {"field": "images", "cause": "bad base64"}
	}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeResourceExhaust, "rate limit exceeded", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotContains(t, rec.Body.String(), "details")
}
