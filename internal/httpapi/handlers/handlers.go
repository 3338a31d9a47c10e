// Package handlers implements the trigger API: synchronous and queued runs,
// workflow templates, input assets and health.
package handlers

import (
	"context"
	"encoding/json"

	"renderbridge/internal/models"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/ports"
	"renderbridge/internal/worker/processor"
)

// Runner executes a request body inline.
type Runner interface {
	RunRaw(ctx context.Context, body []byte) (*processor.Response, error)
}

// RequestValidator checks a request before it is queued.
type RequestValidator interface {
	Parse(ctx context.Context, req processor.Request) (*processor.ParsedJob, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error)
	Finish(ctx context.Context, id string, status models.JobStatus, response json.RawMessage, renderJobID, errMsg string) error
}

type Queue interface {
	Push(ctx context.Context, jobID string) error
}

type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	List(ctx context.Context) ([]models.Template, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	Delete(ctx context.Context, id string) error
}

// Pinger is one dependency probed by the deep health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Runner    Runner
	Validator RequestValidator
	Jobs      JobStore
	Queue     Queue
	Templates TemplateStore
	SP        ports.StorageProvider

	// Checks are the named dependencies of GET /health?deep=true.
	Checks map[string]Pinger

	ServiceName string
	Version     string
	Log         *logger.Logger
}

type Handler struct {
	runner    Runner
	validator RequestValidator
	jobs      JobStore
	queue     Queue
	templates TemplateStore
	sp        ports.StorageProvider
	checks    map[string]Pinger

	service string
	version string
	log     *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		runner:    d.Runner,
		validator: d.Validator,
		jobs:      d.Jobs,
		queue:     d.Queue,
		templates: d.Templates,
		sp:        d.SP,
		checks:    d.Checks,
		service:   d.ServiceName,
		version:   d.Version,
		log:       log.WithComponent("api"),
	}
}

// Log returns the handler logger, for wrapping error-returning handlers.
func (h *Handler) Log() *logger.Logger {
	return h.log
}
