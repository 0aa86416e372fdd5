package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eugener/tiercache/internal/cache"
	"github.com/eugener/tiercache/internal/invalidation"
	"github.com/eugener/tiercache/internal/telemetry"
)

const (
	eventChanSize  = 1000
	eventDrainTime = 10 * time.Second
)

// InvalidationDispatcher applies invalidation rules to queued events.
// Events are dropped if the queue is full.
type InvalidationDispatcher struct {
	ch      chan invalidation.Event
	rules   invalidation.Rules
	reg     *cache.Registry
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewInvalidationDispatcher creates a dispatcher. metrics may be nil.
func NewInvalidationDispatcher(reg *cache.Registry, rules invalidation.Rules, metrics *telemetry.Metrics) *InvalidationDispatcher {
	return &InvalidationDispatcher{
		ch:      make(chan invalidation.Event, eventChanSize),
		rules:   rules,
		reg:     reg,
		metrics: metrics,
		now:     time.Now,
	}
}

// Name returns the worker identifier.
func (d *InvalidationDispatcher) Name() string { return "invalidation_dispatcher" }

// Publish enqueues ev and returns it with ID and At filled in. It never
// blocks; ok is false when the queue is full and the event was dropped.
func (d *InvalidationDispatcher) Publish(ev invalidation.Event) (_ invalidation.Event, ok bool) {
	if ev.ID == "" {
		ev.ID = uuid.Must(uuid.NewV7()).String()
	}
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	select {
	case d.ch <- ev:
		d.gauge()
		return ev, true
	default:
		slog.Warn("invalidation event dropped, queue full", "event", ev.Name, "event_id", ev.ID)
		return ev, false
	}
}

// Run applies events until ctx is cancelled, then drains the queue.
func (d *InvalidationDispatcher) Run(ctx context.Context) error {
	slog.LogAttrs(ctx, slog.LevelInfo, "invalidation dispatcher started",
		slog.Any("events", d.rules.Events()),
	)
	for {
		select {
		case ev := <-d.ch:
			d.apply(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *InvalidationDispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), eventDrainTime)
	defer cancel()

	for {
		select {
		case ev := <-d.ch:
			d.apply(ctx, ev)
		default:
			return
		}
	}
}

func (d *InvalidationDispatcher) apply(ctx context.Context, ev invalidation.Event) {
	d.gauge()
	n, err := d.rules.Apply(ctx, d.reg, ev)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "invalidation event failed",
			slog.String("event", ev.Name),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.LogAttrs(ctx, slog.LevelDebug, "invalidation event applied",
		slog.String("event", ev.Name),
		slog.String("event_id", ev.ID),
		slog.Int("keys", n),
	)
}

func (d *InvalidationDispatcher) gauge() {
	if d.metrics != nil {
		d.metrics.EventQueueLength.Set(float64(len(d.ch)))
	}
}
