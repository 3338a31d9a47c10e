// Package httpapi wires the trigger API routes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"renderbridge/internal/httpapi/handlers"
	"renderbridge/internal/httpkit"
	"renderbridge/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	// RateLimiter throttles the job-triggering routes. Nil disables it.
	RateLimiter *httpkit.RateLimiter
}

func NewRouter(d Deps) http.Handler {
	h := handlers.New(d.Handlers)
	log := h.Log()
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	limited := func(fn middleware.ErrorHandlerFunc) http.Handler {
		if d.RateLimiter == nil {
			return wrap(fn)
		}
		return d.RateLimiter.Middleware(wrap(fn))
	}

	// ---- HEALTH ----
	r.Get("/health", wrap(h.Health))

	// ---- RUNS ----
	r.Method(http.MethodPost, "/run", limited(h.PostRun))

	// ---- JOBS ----
	r.Method(http.MethodPost, "/jobs", limited(h.PostJob))
	r.Get("/jobs", wrap(h.ListJobs))
	r.Get("/jobs/{jobId}", wrap(h.GetJob))

	// ---- TEMPLATES ----
	r.Post("/templates", wrap(h.PostTemplate))
	r.Get("/templates", wrap(h.ListTemplates))
	r.Get("/templates/{templateId}", wrap(h.GetTemplate))
	r.Delete("/templates/{templateId}", wrap(h.DeleteTemplate))

	// ---- ASSETS ----
	r.Post("/assets", wrap(h.PostAsset))
	r.Get("/assets/url/*", wrap(h.GetAssetURL))
	r.Get("/assets/*", wrap(h.StreamAsset))
	r.Delete("/assets/*", wrap(h.DeleteAsset))

	return r
}
