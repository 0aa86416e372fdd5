package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	tiercache "github.com/eugener/tiercache/internal"
)

// maxAdminBody is the maximum allowed admin request body size (1 MB).
const maxAdminBody = 1 << 20

// envelope is the body of every admin response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func okResponse(data any) envelope { return envelope{Success: true, Data: data} }

func errorResponse(msg string) envelope { return envelope{Error: msg} }

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON limits body size, decodes JSON into v, and writes a 400 on error.
// Returns true if decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return false
	}
	return true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, tiercache.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tiercache.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, tiercache.ErrNotFound), errors.Is(err, tiercache.ErrConfiguration):
		return http.StatusNotFound
	case errors.Is(err, tiercache.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Client errors carry their message;
// anything else is logged server-side and returned sanitized.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status < http.StatusInternalServerError {
		writeJSON(w, status, errorResponse(err.Error()))
		return
	}
	slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, status, errorResponse("internal error"))
}
