package engine

import (
	"context"
	"time"
)

// Sweeper periodically re-enqueues every known key for recompute, catching
// keys that receive no new traffic so their aggregate still ages out of
// the cache on schedule. Sweeps execute in parallel across keys with a
// bounded completion timeout.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper builds a Sweeper that ticks at cfg.AggregationIntervalMs.
func NewSweeper(e *Engine) *Sweeper {
	return &Sweeper{engine: e, interval: time.Duration(e.cfg.AggregationIntervalMs) * time.Millisecond}
}

// Name identifies this worker for the runner's startup log.
func (s *Sweeper) Name() string { return "metric_sweeper" }

// Run ticks every s.interval, enqueueing a compute task for each key the
// engine currently tracks, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, k := range s.engine.Keys() {
				s.engine.enqueue(k)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
