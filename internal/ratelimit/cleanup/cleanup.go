// Package cleanup runs the periodic purge of stale rate limit buckets.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"memberd/internal/ratelimit"
)

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// Worker sweeps a rate limit store on a fixed interval until its context is
// cancelled. Only in-process stores need this; Redis buckets expire on their
// own.
type Worker struct {
	store    ratelimit.Sweeper
	logger   *slog.Logger
	interval time.Duration
}

func New(store ratelimit.Sweeper, opts ...Option) *Worker {
	w := &Worker{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks, sweeping every interval, until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			removed, err := w.store.Sweep(ctx)
			duration := time.Since(start)

			if err != nil {
				w.logger.Error("rate_limit_cleanup_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				continue
			}
			w.logger.Info("rate_limit_cleanup_completed",
				"buckets_removed", removed,
				"duration_ms", duration.Milliseconds(),
			)

		case <-ctx.Done():
			w.logger.Info("rate limit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}
