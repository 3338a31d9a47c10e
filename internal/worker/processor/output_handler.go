package processor

import (
	"context"
	"encoding/json"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/worker/renderer"
)

// HistoryFetcher reads a job's execution record.
type HistoryFetcher interface {
	History(ctx context.Context, jobID string) (contracts.History, error)
}

// Collect returns the image and video references recorded for jobID, in
// encounter order. A missing job yields two empty lists. Entries that are not
// well-formed records are skipped.
func Collect(h contracts.History, jobID string) (images, videos []contracts.ArtifactReference) {
	images = []contracts.ArtifactReference{}
	videos = []contracts.ArtifactReference{}

	raw, ok := h[jobID]
	if !ok {
		return images, videos
	}
	// Only outputs are read; status belongs to the await step.
	var entry contracts.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return images, videos
	}

	for _, node := range entry.NodeOutputs() {
		out, ok := contracts.DecodeNodeOutput(node.Raw)
		if !ok {
			continue
		}
		images = appendRefs(images, out.Images)
		videos = appendRefs(videos, out.Videos)
	}
	return images, videos
}

func appendRefs(dst []contracts.ArtifactReference, items []json.RawMessage) []contracts.ArtifactReference {
	for _, item := range items {
		var ref contracts.ArtifactReference
		if err := json.Unmarshal(item, &ref); err != nil {
			continue
		}
		dst = append(dst, ref)
	}
	return dst
}

// OutputHandler turns a finished job's history into artifact URLs.
type OutputHandler struct {
	history HistoryFetcher
	baseURL string
}

// NewOutputHandler returns an OutputHandler resolving URLs against baseURL.
func NewOutputHandler(history HistoryFetcher, baseURL string) *OutputHandler {
	return &OutputHandler{history: history, baseURL: baseURL}
}

// Harvest fetches jobID's history and resolves its non-temp artifacts.
func (oh *OutputHandler) Harvest(ctx context.Context, jobID string) (imageURLs, videoURLs []string, err error) {
	h, err := oh.history.History(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	images, videos := Collect(h, jobID)
	return renderer.ResolveArtifacts(oh.baseURL, images), renderer.ResolveArtifacts(oh.baseURL, videos), nil
}
