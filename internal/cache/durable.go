package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/circuitbreaker"
	"github.com/eugener/tiercache/internal/keys"
	"github.com/eugener/tiercache/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/eugener/tiercache/internal/cache")

// Durable tier operation names used in spans, logs and metrics.
const (
	opGet    = "get"
	opPut    = "put"
	opDelete = "delete"
	opList   = "list"
)

// call runs fn against the durable tier under timeout, the namespace breaker
// and a span. Failures other than ErrNotFound are logged and returned wrapped
// in ErrTierUnavailable; callers treat them as a miss or a no-op.
func (s *Service) call(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	if s.breaker != nil && !s.breaker.Allow() {
		return fmt.Errorf("%w: %s %s: breaker open", tiercache.ErrTierUnavailable, s.cfg.Namespace, op)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "durable."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.namespace", s.cfg.Namespace)),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if s.opts.Metrics != nil {
		s.opts.Metrics.DurableDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if s.breaker != nil {
		if w := circuitbreaker.ClassifyError(err); w > 0 {
			s.breaker.RecordError(w)
		} else {
			s.breaker.RecordSuccess()
		}
	}

	if err == nil || errors.Is(err, tiercache.ErrNotFound) {
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	if s.opts.Metrics != nil {
		s.opts.Metrics.DurableErrors.WithLabelValues(s.cfg.Namespace, op).Inc()
	}
	slog.LogAttrs(ctx, slog.LevelWarn, "durable tier call failed",
		slog.String("namespace", s.cfg.Namespace),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %s %s: %w", tiercache.ErrTierUnavailable, s.cfg.Namespace, op, err)
}

func (s *Service) durableGet(ctx context.Context, key string) (val []byte, expiresAt time.Time, err error) {
	err = s.call(ctx, opGet, s.opts.DurableTimeout, func(ctx context.Context) error {
		var err error
		val, expiresAt, err = s.durable.Get(ctx, keys.Scoped(s.cfg.Namespace, key))
		return err
	})
	return val, expiresAt, err
}

func (s *Service) durablePut(ctx context.Context, e tiercache.Entry) error {
	return s.call(ctx, opPut, s.opts.MirrorTimeout, func(ctx context.Context) error {
		return s.durable.Put(ctx, keys.Scoped(s.cfg.Namespace, e.Key), e.Value, e.TTL)
	})
}

func (s *Service) durableDelete(ctx context.Context, timeout time.Duration, key string) error {
	return s.call(ctx, opDelete, timeout, func(ctx context.Context) error {
		return s.durable.Delete(ctx, keys.Scoped(s.cfg.Namespace, key))
	})
}

func (s *Service) durableList(ctx context.Context) (scoped []string, err error) {
	err = s.call(ctx, opList, s.opts.DurableTimeout, func(ctx context.Context) error {
		var err error
		scoped, err = s.durable.List(ctx, keys.Prefix(s.cfg.Namespace))
		return err
	})
	return scoped, err
}
