package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readyTimeout bounds the durable tier probe so a hung store fails
// readiness instead of hanging the probe.
const readyTimeout = 2 * time.Second

var (
	okBody       = []byte("ok")
	notReadyBody = []byte("durable tier unavailable")
	plainCT      = []string{"text/plain; charset=utf-8"}
)

// handleHealthz reports liveness. The memory tier needs nothing external.
func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, okBody)
}

// handleReadyz reports whether the durable tier answers. The cache keeps
// serving from memory while it does not.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck == nil {
		writePlain(w, http.StatusOK, okBody)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.deps.ReadyCheck(ctx); err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
			slog.String("error", err.Error()),
		)
		writePlain(w, http.StatusServiceUnavailable, notReadyBody)
		return
	}
	writePlain(w, http.StatusOK, okBody)
}

func writePlain(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck
}
