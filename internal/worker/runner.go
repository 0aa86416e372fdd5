package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner runs background workers side by side. The first worker to fail
// cancels the others.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner with the given workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Add appends workers. It must be called before Run.
func (r *Runner) Add(workers ...Worker) {
	r.workers = append(r.workers, workers...)
}

// Names lists the workers in start order.
func (r *Runner) Names() []string {
	out := make([]string, len(r.workers))
	for i, w := range r.workers {
		out[i] = workerName(w)
	}
	return out
}

// Run blocks until every worker has returned. A worker error or panic is
// returned prefixed with the worker's name.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%s: panic: %v", name, rec)
				}
			}()
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			slog.LogAttrs(ctx, slog.LevelDebug, "worker stopped", slog.String("worker", name))
			return nil
		})
	}
	slog.Info("workers started", "workers", r.Names())
	return g.Wait()
}

func workerName(w Worker) string {
	if n, ok := w.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", w)
}
