// Package processor is the job orchestrator: it validates a request, stages
// input images on the render server, submits and awaits the job graph, and
// resolves the produced artifacts into URLs.
package processor

import (
	"context"
	"net/http"
	"time"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/ports"
	"renderbridge/internal/worker/monitor"
	"renderbridge/internal/worker/renderer"
)

// Deps wires a Processor.
type Deps struct {
	Renderer  renderer.Client
	Awaiter   Awaiter
	Templates TemplateSource
	SP        ports.StorageProvider

	// HTTPClient downloads image_url inputs.
	HTTPClient        *http.Client
	ImageMaxBytes     int64
	ImageFetchTimeout time.Duration
	DefaultTimeout    time.Duration
	CleanupInputs     bool

	Log *logger.Logger
}

// Processor runs jobs end to end. It holds no per-job state and is safe for
// concurrent use.
type Processor struct {
	log *logger.Logger

	jobParser       *JobParser
	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

// New returns a Processor.
func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		log:             log,
		jobParser:       NewJobParser(d.Templates, d.DefaultTimeout),
		inputHandler:    NewInputHandler(d.Renderer, d.HTTPClient, d.SP, d.ImageMaxBytes, d.ImageFetchTimeout, log),
		outputHandler:   NewOutputHandler(d.Renderer, d.Renderer.BaseURL()),
		rendererAdapter: NewRendererAdapter(d.Awaiter),
		cleanup:         NewCleanup(d.CleanupInputs, d.SP, log),
	}
}

// RunRaw decodes body and runs it.
func (p *Processor) RunRaw(ctx context.Context, body []byte) (*Response, error) {
	req, err := Decode(body)
	if err != nil {
		resp := newResponse()
		resp.addErrors(err)
		return resp, err
	}
	return p.Run(ctx, req)
}

// Run executes req. The returned Response is never nil. When err is non-nil
// the Response holds whatever was gathered before the failure, including the
// job id once the job was submitted.
func (p *Processor) Run(ctx context.Context, req Request) (*Response, error) {
	resp := newResponse()
	log := p.log.FromContext(ctx)

	// 1. Validate.
	job, err := p.jobParser.Parse(ctx, req)
	if err != nil {
		resp.addErrors(err)
		return resp, err
	}

	// 2. Stage inputs.
	var names []string
	switch {
	case job.IsList:
		var itemErrs []error
		names, itemErrs = p.inputHandler.UploadList(ctx, job.Items)
		resp.addErrors(itemErrs...)
		log.Debug("image list uploaded", "uploaded", len(names), "failed", len(itemErrs))

	case job.Single != nil:
		name, err := p.inputHandler.UploadSingle(ctx, *job.Single)
		if err != nil {
			resp.addErrors(err)
			return resp, err
		}
		names = []string{name}
		if job.Single.Kind == SourceObjectKey {
			p.cleanup.InputUploaded(ctx, job.Single.Value)
		}
		log.Debug("image uploaded", "name", name, "source", job.Single.Kind)
	}

	// 3. Inject.
	if job.WantsInjection() && len(names) > 0 {
		if !Inject(job.Graph, job.Target, names) {
			log.Debug("injection target not found in graph",
				"node_id", string(job.Target.NodeID),
				"field", job.Target.Field,
			)
		}
	}

	// 4. Submit and await.
	outcome, sessionID := p.rendererAdapter.Render(ctx, RenderRequest{
		Graph:   job.Graph,
		Timeout: job.Timeout,
		APIKey:  job.APIKey,
	})
	resp.JobID = outcome.JobID
	log = log.WithSessionID(sessionID)

	switch outcome.State {
	case monitor.StateSucceeded:
	case monitor.StateFailed:
		resp.addErrors(outcome.Errors...)
		log.Warn("job finished with execution errors", "render_job_id", outcome.JobID, "errors", len(outcome.Errors))
	default:
		resp.addErrors(outcome.Errors...)
		return resp, fatal(outcome)
	}

	// 5. Harvest.
	images, videos, err := p.outputHandler.Harvest(ctx, outcome.JobID)
	if err != nil {
		err = errors.Wrap(err, "processor.harvest", "failed to fetch history").WithField("render_job_id", outcome.JobID)
		resp.addErrors(err)
		return resp, err
	}
	resp.ImageURLs = images
	resp.VideoURLs = videos

	log.Info("job completed",
		"render_job_id", outcome.JobID,
		"state", string(outcome.State),
		"images", len(images),
		"videos", len(videos),
	)
	return resp, nil
}

// fatal picks the error that ends a run which did not reach a terminal job
// state. The underlying code (TIMEOUT, UNAVAILABLE, SUBMISSION_ERROR, ...) is
// kept.
func fatal(o monitor.Outcome) error {
	var err *errors.Error
	if len(o.Errors) > 0 {
		err = errors.Wrap(o.Errors[0], "processor.await", "job did not complete")
	} else {
		err = errors.Submission("job did not complete")
	}
	if o.JobID != "" {
		err = err.WithField("render_job_id", o.JobID)
	}
	return err
}
