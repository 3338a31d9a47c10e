package processor

import (
	"context"
	"time"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/worker/monitor"
	"renderbridge/internal/worker/util"
)

// Awaiter submits a job and waits for it to finish. monitor.Monitor and
// monitor.Poller both satisfy it.
type Awaiter interface {
	SubmitAndAwait(ctx context.Context, job monitor.Job) monitor.Outcome
}

// RendererAdapter prepares the graph and hands it to the Awaiter.
type RendererAdapter struct {
	awaiter Awaiter
}

// NewRendererAdapter returns a RendererAdapter.
func NewRendererAdapter(awaiter Awaiter) *RendererAdapter {
	return &RendererAdapter{awaiter: awaiter}
}

// RenderRequest is one submission.
type RenderRequest struct {
	Graph   contracts.Graph
	Timeout time.Duration
	APIKey  string
}

// Inject writes the first uploaded name into target. It reports whether the
// graph changed; a missing node is not an error.
func Inject(g contracts.Graph, target contracts.InputPatch, names []string) bool {
	if len(names) == 0 {
		return false
	}
	target.Value = names[0]
	return g.Apply(target)
}

// Render submits req.Graph under a fresh session id and waits at most
// req.Timeout for it to finish.
func (ra *RendererAdapter) Render(ctx context.Context, req RenderRequest) (monitor.Outcome, string) {
	sessionID := util.NewSessionID()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	out := ra.awaiter.SubmitAndAwait(ctx, monitor.Job{
		Graph:     req.Graph,
		SessionID: sessionID,
		APIKey:    req.APIKey,
	})
	return out, sessionID
}
