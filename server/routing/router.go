// Package routing assembles the HTTP router: the global middleware stack,
// the form page, the session-scoped /v1 API, health and metrics.
package routing

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lumiverse/lumiverse/errors"
	"github.com/lumiverse/lumiverse/server/handlers"
	"github.com/lumiverse/lumiverse/server/metrics"
	"github.com/lumiverse/lumiverse/server/middleware"
	"github.com/lumiverse/lumiverse/server/session"
	"go.uber.org/zap"
)

// StateFunc reports the state of the upstream circuit breaker.
type StateFunc func() string

// Options are the pieces the router is built from. Sessions and Handler are
// required; everything else may be nil.
type Options struct {
	Handler    *handlers.Handler
	Sessions   *session.Store
	CookieName string

	// Limiter guards the endpoints that reach the completion API.
	Limiter *middleware.RateLimiter

	Metrics      *metrics.Metrics
	BreakerState StateFunc
}

// Router handles HTTP routing for the server.
type Router struct {
	router chi.Router
	logger *zap.Logger
	opts   Options
}

// NewRouter creates the router with the global middleware stack and all
// routes mounted.
func NewRouter(opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		router: chi.NewRouter(),
		logger: logger,
		opts:   opts,
	}

	// Global middleware stack. ErrorHandler catches panics in the middleware
	// below it; Recovery covers the handlers.
	r.router.Use(errors.ErrorHandler(logger))
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(middleware.Logging(logger))
	if opts.Metrics != nil {
		r.router.Use(middleware.PrometheusMetrics(opts.Metrics))
	}
	r.router.Use(middleware.Recovery(logger))
	r.router.Use(middleware.CORS)

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	h := r.opts.Handler

	r.router.Get("/health", r.healthCheckHandler())
	if r.opts.Metrics != nil {
		r.router.Handle("/metrics", r.opts.Metrics.Handler())
	}

	r.router.Group(func(router chi.Router) {
		router.Use(r.opts.Sessions.Middleware(r.opts.CookieName))

		router.Get("/", h.Page)
		router.Route("/v1", func(v1 chi.Router) {
			v1.Get("/state", h.State)
			v1.Put("/form", h.UpdateForm)
			v1.Post("/wordcount", h.WordCount)
			v1.Get("/topics", h.ListTopics)
			v1.Post("/topics", h.ImportTopics)
			v1.Put("/topics/selected", h.SelectTopic)

			v1.Group(func(limited chi.Router) {
				if r.opts.Limiter != nil {
					limited.Use(r.opts.Limiter.Handler)
				}
				limited.Post("/score", h.Score)
				limited.Post("/tips", h.Tips)
			})
		})
	})
}

// healthCheckHandler reports liveness. The breaker state is informational;
// an open breaker does not make the server unhealthy.
func (r *Router) healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{"status": "ok"}
		if r.opts.BreakerState != nil {
			body["circuit_breaker"] = r.opts.BreakerState()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			r.logger.Error("Failed to encode response", zap.Error(err))
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
