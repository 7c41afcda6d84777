package rawstore

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"signalgate/internal/record"
)

// SinkConfig controls the bounded queue and worker pool batching writes
// into Postgres.
type SinkConfig struct {
	QueueCapacity   int
	Workers         int
	BatchSize       int
	FlushIntervalMs int
}

// BatchInserter is the persistence interface Sink consumes, narrow enough
// that the worker pool can be tested against a fake without a live
// Postgres instance.
type BatchInserter interface {
	InsertBatch(ctx context.Context, records []record.TelemetryRecord) error
}

// Sink accepts TelemetryRecords from the ingest handlers onto a shared
// bounded channel, consumed by a fixed pool of worker goroutines each
// running its own batch-and-flush loop.
type Sink struct {
	store BatchInserter
	cfg   SinkConfig
	queue chan record.TelemetryRecord

	dropped atomic.Int64
}

// NewSink builds a Sink backed by store.
func NewSink(store BatchInserter, cfg SinkConfig) *Sink {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 500
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1_000_000
	}
	return &Sink{
		store: store,
		cfg:   cfg,
		queue: make(chan record.TelemetryRecord, cfg.QueueCapacity),
	}
}

// Name identifies this worker for the runner's startup log.
func (s *Sink) Name() string { return "rawstore_sink" }

// Enqueue offers r to the shared queue without blocking. On a full queue it
// drops the record and counts it rather than requeueing -- the raw store
// is for durability, not a delivery guarantee.
func (s *Sink) Enqueue(r record.TelemetryRecord) {
	select {
	case s.queue <- r:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the cumulative count of records dropped for a full queue.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Run starts cfg.Workers consumer goroutines and blocks until ctx is
// cancelled, then lets each worker drain its local buffer before returning.
func (s *Sink) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			s.runWorker(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Sink) runWorker(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.FlushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	buf := make([]record.TelemetryRecord, 0, s.cfg.BatchSize)

	for {
		select {
		case r := <-s.queue:
			buf = append(buf, r)
			if len(buf) >= s.cfg.BatchSize {
				s.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			if len(buf) > 0 {
				s.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ctx.Done():
			s.drain(buf)
			return
		}
	}
}

// drain empties whatever remains on the shared queue for this worker's
// share, bounded at 5 seconds so shutdown cannot hang indefinitely.
func (s *Sink) drain(buf []record.TelemetryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case r := <-s.queue:
			buf = append(buf, r)
			if len(buf) >= s.cfg.BatchSize {
				s.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ctx.Done():
			if len(buf) > 0 {
				s.flush(ctx, buf)
			}
			return
		default:
			if len(buf) > 0 {
				s.flush(ctx, buf)
			}
			return
		}
	}
}

// flush copies buf (avoiding aliasing the caller's backing array) and
// inserts it as one multi-row statement. On batch rejection it falls back
// to per-record inserts so one malformed record doesn't sink the whole
// batch.
func (s *Sink) flush(ctx context.Context, buf []record.TelemetryRecord) {
	batch := make([]record.TelemetryRecord, len(buf))
	copy(batch, buf)

	if err := s.store.InsertBatch(ctx, batch); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "raw batch insert failed, falling back to per-record",
			slog.Int("count", len(batch)), slog.String("error", err.Error()))
		s.insertIndividually(ctx, batch)
	}
}

func (s *Sink) insertIndividually(ctx context.Context, batch []record.TelemetryRecord) {
	var failed int
	for _, r := range batch {
		if err := s.store.InsertBatch(ctx, []record.TelemetryRecord{r}); err != nil {
			failed++
		}
	}
	if failed > 0 {
		slog.LogAttrs(ctx, slog.LevelError, "per-record insert fallback had failures",
			slog.Int("failed", failed), slog.Int("total", len(batch)))
	}
}

// placeholderRow renders the $n placeholder group for row i of an N-column
// insert.
func placeholderRow(startArg, cols int) string {
	parts := make([]string, cols)
	for c := 0; c < cols; c++ {
		parts[c] = "$" + strconv.Itoa(startArg+c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
