// Package monitor submits jobs to the render server and waits for them to
// finish, either over the notification stream (Monitor) or by polling
// history (Poller).
package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/eapache/go-resiliency/retrier"

	"renderbridge/internal/config"
	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/worker/renderer"
)

// State is a step of the submit-and-await lifecycle.
type State string

const (
	StatePreflight    State = "PREFLIGHT"
	StateStreamOpen   State = "STREAM_OPEN"
	StateSubmitted    State = "SUBMITTED"
	StateAwaiting     State = "AWAITING"
	StateReconnecting State = "RECONNECTING"
	StateSucceeded    State = "SUCCEEDED"
	StateFailed       State = "FAILED"
	StateAborted      State = "ABORTED"
)

// Outcome is the terminal result of a submit-and-await run. JobID is empty
// when submission never succeeded. A FAILED outcome always carries a JobID;
// an ABORTED one carries it when the job was submitted before the abort.
type Outcome struct {
	JobID  string
	State  State
	Errors []error
}

// Job is one submission.
type Job struct {
	Graph     contracts.Graph
	SessionID string
	// APIKey overrides Config.APIKey for this job.
	APIKey string
}

// Prober checks render-server liveness.
type Prober interface {
	Probe(ctx context.Context, attempts int, delay time.Duration) bool
}

// Submitter queues a job graph.
type Submitter interface {
	QueuePrompt(ctx context.Context, req contracts.PromptRequest) (string, error)
}

// Config holds the retry tunables shared by Monitor and Poller.
type Config struct {
	BaseURL              string
	APIKey               string
	ReachabilityAttempts int
	ReachabilityInterval time.Duration
	ReconnectAttempts    int
	ReconnectDelay       time.Duration
	PollInterval         time.Duration
}

// ConfigFrom copies the render-server section of the process config.
func ConfigFrom(rs config.RenderServer) Config {
	return Config{
		BaseURL:              rs.BaseURL,
		APIKey:               rs.APIKey,
		ReachabilityAttempts: rs.ReachabilityAttempts,
		ReachabilityInterval: rs.ReachabilityInterval,
		ReconnectAttempts:    rs.ReconnectAttempts,
		ReconnectDelay:       rs.ReconnectDelay,
		PollInterval:         rs.PollInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.ReachabilityAttempts < 1 {
		c.ReachabilityAttempts = 1
	}
	if c.ReconnectAttempts < 1 {
		c.ReconnectAttempts = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Monitor runs the streaming await:
//
//	PREFLIGHT -> STREAM_OPEN -> SUBMITTED -> AWAITING <-> RECONNECTING -> SUCCEEDED | FAILED | ABORTED
//
// A Monitor is safe for concurrent use; every run opens its own stream.
type Monitor struct {
	cfg     Config
	probe   Prober
	submit  Submitter
	dialer  Dialer
	history HistoryFetcher
	log     *logger.Logger
}

// New returns a Monitor. history is read once after every reconnect; nil
// disables that check.
func New(cfg Config, probe Prober, submit Submitter, dialer Dialer, history HistoryFetcher, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Monitor{
		cfg:     cfg.withDefaults(),
		probe:   probe,
		submit:  submit,
		dialer:  dialer,
		history: history,
		log:     log.WithComponent("monitor"),
	}
}

// SubmitAndAwait submits job and blocks until it reaches a terminal state or
// ctx ends. The stream is closed before it returns.
func (m *Monitor) SubmitAndAwait(ctx context.Context, job Job) Outcome {
	r := &run{
		m:   m,
		job: job,
		log: m.log.FromContext(logger.ContextWithSessionID(ctx, job.SessionID)),
	}
	defer r.closeStream()
	return r.exec(ctx)
}

type run struct {
	m         *Monitor
	job       Job
	log       *logger.Logger
	state     State
	streamURL string
	stream    Stream
	jobID     string
}

func (r *run) transition(s State, args ...any) {
	r.state = s
	r.log.Debug("monitor state", append([]any{"state", string(s), "render_job_id", r.jobID}, args...)...)
}

func (r *run) exec(ctx context.Context) Outcome {
	cfg := r.m.cfg

	r.transition(StatePreflight)
	if !r.m.probe.Probe(ctx, cfg.ReachabilityAttempts, cfg.ReachabilityInterval) {
		if ctx.Err() != nil {
			return r.canceled(ctx)
		}
		return r.abort(errors.Unreachable(renderer.Host(cfg.BaseURL), cfg.ReachabilityAttempts))
	}

	streamURL, err := renderer.StreamURL(cfg.BaseURL, r.job.SessionID)
	if err != nil {
		return r.abort(errors.Wrap(err, "monitor.stream_url", "invalid render server address"))
	}
	r.streamURL = streamURL

	stream, err := r.m.dialer.Dial(ctx, streamURL)
	if err != nil {
		if ctx.Err() != nil {
			return r.canceled(ctx)
		}
		return r.abort(errors.StreamDisconnected("failed to open notification stream", err))
	}
	r.stream = stream
	r.transition(StateStreamOpen)

	apiKey := r.job.APIKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	jobID, err := r.m.submit.QueuePrompt(ctx, contracts.NewPromptRequest(r.job.Graph, r.job.SessionID, apiKey))
	if err != nil {
		if ctx.Err() != nil {
			return r.canceled(ctx)
		}
		return r.abort(err)
	}
	if jobID == "" {
		return r.abort(errors.Submission("render server did not return a prompt id"))
	}
	r.jobID = jobID
	r.transition(StateSubmitted)

	return r.await(ctx)
}

func (r *run) await(ctx context.Context) Outcome {
	r.transition(StateAwaiting)
	for {
		raw, err := r.stream.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return r.canceled(ctx)
			}
			if err := r.reconnect(ctx, err); err != nil {
				if ctx.Err() != nil {
					return r.canceled(ctx)
				}
				return r.abort(err)
			}
			r.transition(StateAwaiting, "resumed", true)
			if out, done := r.finishedWhileDown(ctx); done {
				return out
			}
			continue
		}

		done, execErr := inspectFrame(raw, r.jobID)
		if !done {
			continue
		}
		if execErr != nil {
			r.transition(StateFailed, "error", execErr.Error())
			return Outcome{JobID: r.jobID, State: StateFailed, Errors: []error{execErr}}
		}
		r.transition(StateSucceeded)
		return Outcome{JobID: r.jobID, State: StateSucceeded}
	}
}

// finishedWhileDown reads the job's history once after a reconnect. A
// completion frame sent while no stream was open is only visible there.
func (r *run) finishedWhileDown(ctx context.Context) (Outcome, bool) {
	if r.m.history == nil {
		return Outcome{}, false
	}
	h, err := r.m.history.History(ctx, r.jobID)
	if err != nil {
		r.log.Warn("history check after reconnect failed", "render_job_id", r.jobID, "error", err.Error())
		return Outcome{}, false
	}
	out, done := historyOutcome(h, r.jobID)
	if !done {
		return Outcome{}, false
	}
	r.log.Info("job finished while the stream was down", "render_job_id", r.jobID)
	if out.State == StateFailed {
		r.transition(StateFailed, "error", out.Errors[0].Error())
	} else {
		r.transition(StateSucceeded)
	}
	return out, true
}

var errServerDown = stderrors.New("render server unreachable")

// reconnectClassifier stops retrying once the server itself is down.
type reconnectClassifier struct{}

func (reconnectClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case stderrors.Is(err, errServerDown):
		return retrier.Fail
	default:
		return retrier.Retry
	}
}

// reconnect replaces the dropped stream. Each attempt first checks liveness
// once; a dead server ends the wait immediately.
func (r *run) reconnect(ctx context.Context, cause error) error {
	cfg := r.m.cfg
	r.transition(StateReconnecting, "cause", cause.Error())
	r.closeStream()

	last := cause
	attempt := 0
	rt := retrier.New(retrier.ConstantBackoff(cfg.ReconnectAttempts-1, cfg.ReconnectDelay), reconnectClassifier{})
	err := rt.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		if !r.m.probe.Probe(ctx, 1, 0) {
			return errServerDown
		}
		s, err := r.m.dialer.Dial(ctx, r.streamURL)
		if err != nil {
			last = err
			r.log.Warn("stream reconnect failed", "render_job_id", r.jobID, "attempt", attempt, "error", err.Error())
			return err
		}
		r.stream = s
		return nil
	})

	switch {
	case err == nil:
		r.log.Info("stream reconnected", "render_job_id", r.jobID, "attempt", attempt)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case stderrors.Is(err, errServerDown):
		return errors.StreamDisconnected("render server unreachable during stream reconnect", cause)
	default:
		return errors.StreamDisconnected(fmt.Sprintf("failed to reconnect stream after %d attempts", attempt), last)
	}
}

func (r *run) closeStream() {
	if r.stream == nil {
		return
	}
	if err := r.stream.Close(); err != nil {
		r.log.Debug("stream close failed", "error", err.Error())
	}
	r.stream = nil
}

func (r *run) abort(err error) Outcome {
	r.transition(StateAborted, "error", err.Error())
	return Outcome{JobID: r.jobID, State: StateAborted, Errors: []error{err}}
}

func (r *run) canceled(ctx context.Context) Outcome {
	return r.abort(contextError(ctx, "monitor.await"))
}

// contextError maps a done ctx onto the coded taxonomy: a deadline is a
// TIMEOUT, anything else is a cancellation.
func contextError(ctx context.Context, op string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Timeout("await job completion")
	}
	return errors.WrapWithCode(ctx.Err(), errors.CodeUnavailable, op, "job wait canceled")
}
