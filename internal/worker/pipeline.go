package worker

import (
	"net/http"

	"renderbridge/internal/config"
	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/ports"
	"renderbridge/internal/worker/monitor"
	"renderbridge/internal/worker/processor"
	"renderbridge/internal/worker/renderer"
)

// NewProcessor builds the job pipeline for the configured render server.
// templates and sp may be nil; requests that need them are then rejected.
func NewProcessor(cfg *config.Config, templates processor.TemplateSource, sp ports.StorageProvider, log *logger.Logger) *processor.Processor {
	client := renderer.NewHTTPClient(cfg.BaseURL, cfg.RequestTimeout)
	mcfg := monitor.ConfigFrom(cfg.RenderServer)

	var awaiter processor.Awaiter
	switch cfg.AwaitMode {
	case config.AwaitModePoll:
		awaiter = monitor.NewPoller(mcfg, client, client, client, log)
	default:
		awaiter = monitor.New(mcfg, client, client, monitor.NewWebsocketDialer(0), client, log)
	}

	return processor.New(processor.Deps{
		Renderer:          client,
		Awaiter:           awaiter,
		Templates:         templates,
		SP:                sp,
		HTTPClient:        &http.Client{},
		ImageMaxBytes:     cfg.ImageMaxBytes,
		ImageFetchTimeout: cfg.ImageFetchTimeout,
		DefaultTimeout:    cfg.DefaultTimeout,
		CleanupInputs:     cfg.CleanupInputs,
		Log:               log,
	})
}
