// Package server implements the HTTP admin surface of the cache.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/tiercache/internal/analytics"
	"github.com/eugener/tiercache/internal/browser"
	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/health"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/ratelimit"
	"github.com/eugener/tiercache/internal/telemetry"
	"github.com/eugener/tiercache/internal/warming"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// EventPublisher queues invalidation events.
type EventPublisher interface {
	Publish(ev invalidation.Event) (invalidation.Event, bool)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Registry       *cache.Registry
	Health         *health.Evaluator
	Analytics      *analytics.Aggregator
	Trends         *analytics.TrendRecorder // nil = a single live sample
	Browser        *browser.Browser
	Warming        *warming.Coordinator
	Events         EventPublisher      // nil = events rejected with 503
	ReadyCheck     ReadyChecker        // nil = always ready (for tests)
	AdminToken     string              // empty = admin routes unauthenticated
	RateLimiter    *ratelimit.Registry // nil = no rate limiting
	Metrics        *telemetry.Metrics  // nil = no request metrics
	MetricsHandler http.Handler        // nil = no /metrics endpoint
}

// AdminPrefix is where the cache admin routes are mounted.
const AdminPrefix = "/admin/cache"

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(instrument(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route(AdminPrefix, func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Get("/stats", s.handleStats)
		r.Get("/stats/{namespace}", s.handleNamespaceStats)
		r.Get("/health", s.handleHealth)
		r.Post("/clear", s.handleClearAll)
		r.Post("/clear/{namespace}", s.handleClear)
		r.Post("/invalidate", s.handleInvalidate)

		r.Get("/browser", s.handleBrowse)
		r.Get("/browser/{namespace}/{key}", s.handleBrowseEntry)

		r.Get("/analytics", s.handleAnalytics)
		r.Get("/analytics/trends", s.handleTrends)
		r.Get("/analytics/top-keys", s.handleTopKeys)

		r.Post("/warm", s.handleWarm)
		r.Post("/warm/{namespace}", s.handleWarmNamespace)

		r.Post("/events", s.handleEvent)
	})

	return r
}

type server struct {
	deps Deps
}
