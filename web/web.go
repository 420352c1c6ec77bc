// Package web provides the preview server. It serves the publish root
// as static files and exposes pipeline state over a small JSON API.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RunLister returns recent publish runs, newest first. A limit of zero
// applies the service default.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]ports.Run, error)
}

// Handler provides the preview server endpoints.
type Handler struct {
	holder      *app.Holder
	runs        RunLister
	root        string
	metrics     http.Handler
	metricsPath string
	logger      zerolog.Logger
}

// Deps contains dependencies for the preview handler.
type Deps struct {
	Holder      *app.Holder
	Runs        RunLister
	Root        string       // publish root served at /
	Metrics     http.Handler // mounted at MetricsPath when set
	MetricsPath string       // defaults to /metrics
	Logger      zerolog.Logger
}

// NewHandler creates a new preview handler.
func NewHandler(deps Deps) *Handler {
	path := deps.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Handler{
		holder:      deps.Holder,
		runs:        deps.Runs,
		root:        deps.Root,
		metrics:     deps.Metrics,
		metricsPath: path,
		logger:      deps.Logger,
	}
}

// Router returns the preview server router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/api/status", h.Status)
	r.Get("/api/runs", h.Runs)

	if h.metrics != nil {
		r.Handle(h.metricsPath, h.metrics)
	}

	// Published material, directory listings included
	r.Handle("/*", http.FileServer(http.Dir(h.root)))

	return r
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
