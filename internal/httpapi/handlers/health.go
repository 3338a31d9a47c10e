package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"renderbridge/internal/httpkit"
)

const healthCheckTimeout = 5 * time.Second

// Health reports liveness. With ?deep=true it also pings every configured
// dependency and reports "degraded" when any of them fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": h.service,
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		var failed []string
		for name, check := range checks {
			if check["status"] != "ok" {
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			health["status"] = "degraded"
			h.log.FromContext(ctx).Warn("health check degraded", "failed", failed)
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
	return nil
}

// deepHealthCheck pings every dependency concurrently.
func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]map[string]any, len(h.checks)+1)
	)

	for name, p := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := ping(ctx, p)
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	if h.sp != nil {
		checks["storage"] = map[string]any{
			"status":   "ok",
			"provider": h.sp.Provider(),
		}
	}
	return checks
}

func ping(ctx context.Context, p Pinger) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := p.Ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
