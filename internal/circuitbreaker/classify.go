package circuitbreaker

import (
	"context"
	"errors"
	"net"
	"os"

	tiercache "github.com/eugener/tiercache/internal"
)

// ClassifyError returns the weight a durable-tier error adds to the
// breaker's error rate. Misses and caller-side faults weigh nothing;
// timeouts weigh more than other store failures.
func ClassifyError(err error) float64 {
	if err == nil {
		return 0
	}
	if errors.Is(err, tiercache.ErrNotFound) ||
		errors.Is(err, tiercache.ErrSerialization) ||
		errors.Is(err, tiercache.ErrValidation) ||
		errors.Is(err, context.Canceled) {
		return 0
	}
	if isTimeout(err) {
		return 1.5
	}
	return 1.0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
