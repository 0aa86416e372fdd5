package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/tiercache/internal/telemetry"
)

// unmatchedRoute labels requests no route pattern claimed.
const unmatchedRoute = "unmatched"

var statusClasses = [...]string{"1xx", "2xx", "3xx", "4xx", "5xx"}

// statusClass folds a status code into its class label.
func statusClass(code int) string {
	if i := code/100 - 1; i >= 0 && i < len(statusClasses) {
		return statusClasses[i]
	}
	return "other"
}

// instrument records admin request counts, latency and in-flight requests
// labeled by chi route pattern.
func instrument(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			start := time.Now()
			sw := acquireStatusWriter(w)

			next.ServeHTTP(sw, r)

			status := sw.status
			releaseStatusWriter(sw)
			m.ActiveRequests.Dec()

			route := routePattern(r)
			m.RequestsTotal.WithLabelValues(r.Method, route, statusClass(status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the chi route pattern. Namespace and key path
// segments stay templated, so label cardinality does not grow with data.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
