package server

import (
	"crypto/subtle"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	tiercache "github.com/eugener/tiercache/internal"
)

// statusWriterPool keeps per-request wrappers off the heap.
var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

func acquireStatusWriter(w http.ResponseWriter) *statusWriter {
	sw := statusWriterPool.Get().(*statusWriter)
	sw.ResponseWriter = w
	sw.status = http.StatusOK
	sw.wroteHeader = false
	return sw
}

// releaseStatusWriter drops the ResponseWriter so the pool does not retain it.
func releaseStatusWriter(sw *statusWriter) {
	sw.ResponseWriter = nil
	statusWriterPool.Put(sw)
}

// recovery catches panics and returns 500.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader uses the canonical MIME form so direct map access
// (r.Header[key], w.Header()[key] = ...) skips textproto.CanonicalMIMEHeaderKey.
const requestIDHeader = "X-Request-Id"

// requestID adds a UUID v7 request ID to the context and response header.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		ctx := tiercache.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logging logs each request with method, path, status, and duration.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := acquireStatusWriter(w)
		next.ServeHTTP(sw, r)
		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		slog.LogAttrs(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", tiercache.RequestIDFromContext(r.Context())),
		)
		releaseStatusWriter(sw)
	})
}

// authenticate requires "Authorization: Bearer <AdminToken>" when a token
// is configured.
func (s *server) authenticate(next http.Handler) http.Handler {
	if s.deps.AdminToken == "" {
		return next
	}
	want := []byte(s.deps.AdminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			writeJSON(w, errorStatus(tiercache.ErrUnauthorized), errorResponse("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces per-client admin budgets. Mutating methods also spend
// the write budget.
func (s *server) rateLimit(next http.Handler) http.Handler {
	if s.deps.RateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		write := r.Method != http.MethodGet && r.Method != http.MethodHead
		res := s.deps.RateLimiter.Allow(clientKey(r), write)
		if res.Limit > 0 {
			w.Header().Set("X-Ratelimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-Ratelimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		}
		if !res.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimited.WithLabelValues(limitKind(write)).Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfterSeconds))))
			slog.LogAttrs(r.Context(), slog.LevelWarn, "admin rate limited",
				slog.String("client", clientKey(r)),
				slog.String("path", r.URL.Path),
			)
			writeJSON(w, errorStatus(tiercache.ErrRateLimited), errorResponse(tiercache.ErrRateLimited.Error()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitKind(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// clientKey identifies the caller by remote host.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter wraps ResponseWriter to capture the HTTP status code.
// WriteHeader records only the first status code; subsequent calls are
// forwarded to the underlying writer but do not update the captured value.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, allowing http.ResponseController
// and similar utilities to find interface implementations.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
