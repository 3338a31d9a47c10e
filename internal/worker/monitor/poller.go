package monitor

import (
	"context"
	"time"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/worker/renderer"
)

// HistoryFetcher reads a job's execution record.
type HistoryFetcher interface {
	History(ctx context.Context, jobID string) (contracts.History, error)
}

// Poller is the degraded await mode: no stream, just periodic history reads
// until the job's entry appears. It is bounded only by ctx.
type Poller struct {
	cfg     Config
	probe   Prober
	submit  Submitter
	history HistoryFetcher
	log     *logger.Logger
}

// NewPoller returns a Poller.
func NewPoller(cfg Config, probe Prober, submit Submitter, history HistoryFetcher, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Poller{
		cfg:     cfg.withDefaults(),
		probe:   probe,
		submit:  submit,
		history: history,
		log:     log.WithComponent("poller"),
	}
}

// SubmitAndAwait submits job and polls history until it finishes or ctx ends.
func (p *Poller) SubmitAndAwait(ctx context.Context, job Job) Outcome {
	log := p.log.FromContext(logger.ContextWithSessionID(ctx, job.SessionID))

	if !p.probe.Probe(ctx, p.cfg.ReachabilityAttempts, p.cfg.ReachabilityInterval) {
		if ctx.Err() != nil {
			return Outcome{State: StateAborted, Errors: []error{contextError(ctx, "poller.preflight")}}
		}
		return Outcome{State: StateAborted, Errors: []error{errors.Unreachable(renderer.Host(p.cfg.BaseURL), p.cfg.ReachabilityAttempts)}}
	}

	apiKey := job.APIKey
	if apiKey == "" {
		apiKey = p.cfg.APIKey
	}
	jobID, err := p.submit.QueuePrompt(ctx, contracts.NewPromptRequest(job.Graph, job.SessionID, apiKey))
	if err != nil {
		if ctx.Err() != nil {
			err = contextError(ctx, "poller.submit")
		}
		return Outcome{State: StateAborted, Errors: []error{err}}
	}
	if jobID == "" {
		return Outcome{State: StateAborted, Errors: []error{errors.Submission("render server did not return a prompt id")}}
	}
	log = log.WithRenderJobID(jobID)
	log.Debug("job submitted, polling history", "interval", p.cfg.PollInterval.String())

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{JobID: jobID, State: StateAborted, Errors: []error{contextError(ctx, "poller.await")}}
		case <-ticker.C:
		}

		h, err := p.history.History(ctx, jobID)
		if err != nil {
			log.Warn("history poll failed", "error", err.Error())
			continue
		}
		if out, done := historyOutcome(h, jobID); done {
			return out
		}
	}
}
