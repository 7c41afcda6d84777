// Package engine implements a per-key event buffer and metric engine that
// computes sliding-window aggregates with debounced recomputation and a
// periodic full sweep.
package engine

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"signalgate/internal/digest"
	"signalgate/internal/metriccache"
	"signalgate/internal/record"
)

// Config holds the engine's sliding-window and debounce tunables.
type Config struct {
	WindowSeconds         int
	AggregationIntervalMs int
	MinComputeIntervalMs  int
}

const (
	burstFastPathSize = 5
	agingGraceSeconds = 10
	computeTimeout    = 5 * time.Second
)

// event is one observation recorded into a key's buffer.
type event struct {
	timestamp  time.Time
	latencyMs  int64
	statusCode int
}

// keyState is the per-aggregation-key engine state: its event buffer and
// last compute-claim timestamp (for CAS debounce).
type keyState struct {
	mu          sync.Mutex
	events      []event
	lastCompute atomic.Int64 // unix millis; 0 == never computed
}

// Engine owns the per-key maps. Construct one explicitly and pass it into
// handlers rather than reaching for an implicit global singleton.
type Engine struct {
	cfg     Config
	cache   *metriccache.Cache
	digests *digest.Registry

	keys sync.Map // record.AggregationKey -> *keyState

	tasks chan record.AggregationKey
}

// New constructs an Engine. Call Run to start its compute-task worker pool.
func New(cfg Config, cache *metriccache.Cache, digests *digest.Registry) *Engine {
	return &Engine{
		cfg:     cfg,
		cache:   cache,
		digests: digests,
		tasks:   make(chan record.AggregationKey, 1024),
	}
}

// Name identifies this worker for the runner's startup log.
func (e *Engine) Name() string { return "metric_engine" }

// Run starts the compute-task worker pool and blocks until ctx is cancelled.
// Pool size matches GOMAXPROCS, since compute tasks are CPU-bound scans.
func (e *Engine) Run(ctx context.Context) error {
	n := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case k := <-e.tasks:
					e.compute(ctx, k)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

// stateFor returns the keyState for k, creating one on first observation
// (Uninitialized -> Active transition).
func (e *Engine) stateFor(k record.AggregationKey) *keyState {
	if v, ok := e.keys.Load(k); ok {
		return v.(*keyState)
	}
	v, _ := e.keys.LoadOrStore(k, &keyState{})
	return v.(*keyState)
}

// Ingest records r for its aggregation key: appends to the event buffer,
// updates the percentile digest, and claims a compute slot if the debounce
// rule allows it. Never blocks on I/O; the compute task itself runs async.
func (e *Engine) Ingest(r record.TelemetryRecord) {
	k := r.KeyOf()
	st := e.stateFor(k)

	ev := event{timestamp: r.Timestamp, latencyMs: r.LatencyMs, statusCode: r.StatusCode}
	st.mu.Lock()
	st.events = append(st.events, ev)
	size := len(st.events)
	st.mu.Unlock()

	if err := e.digests.Add(k, float64(r.LatencyMs)); err != nil {
		slog.LogAttrs(context.Background(), slog.LevelWarn, "digest add failed",
			slog.String("key", k.String()), slog.String("error", err.Error()))
	}

	e.maybeCompute(st, k, size)
}

// maybeCompute implements the recompute decision and CAS claim: recompute
// if never computed, if MinComputeIntervalMs has elapsed, or on the burst
// fast-path (buffer size >= 5). Only the CAS winner enqueues from this
// ingest path. TriggerImmediate and the Sweeper enqueue without taking the
// claim, so more than one compute task for a key can be queued or running
// at the same time.
func (e *Engine) maybeCompute(st *keyState, k record.AggregationKey, bufSize int) {
	now := time.Now().UnixMilli()
	last := st.lastCompute.Load()

	shouldCompute := last == 0 ||
		now-last >= int64(e.cfg.MinComputeIntervalMs) ||
		bufSize >= burstFastPathSize

	if !shouldCompute {
		return
	}
	if !st.lastCompute.CompareAndSwap(last, now) {
		return // another goroutine already claimed this interval
	}
	e.enqueue(k)
}

// TriggerImmediate forces a compute task for k regardless of debounce
// state, used by the ingest handler after fanning out a batch so new
// traffic surfaces on the dashboard within a couple of seconds.
func (e *Engine) TriggerImmediate(k record.AggregationKey) {
	if _, ok := e.keys.Load(k); !ok {
		return
	}
	e.enqueue(k)
}

// enqueue offers k to the compute-task channel without blocking; a full
// channel means a task for some key is already pending, and the periodic
// sweep will catch up regardless.
func (e *Engine) enqueue(k record.AggregationKey) {
	select {
	case e.tasks <- k:
	default:
	}
}

// compute runs the compute task for k, writing a fresh aggregate to the
// cache and aging the buffer. Errors are logged and swallowed: a failure
// for one key must not affect others or the sweeper.
func (e *Engine) compute(ctx context.Context, k record.AggregationKey) {
	v, ok := e.keys.Load(k)
	if !ok {
		return
	}
	st := v.(*keyState)

	ctx, cancel := context.WithTimeout(ctx, computeTimeout)
	defer cancel()

	now := time.Now()
	windowStart := now.Add(-time.Duration(e.cfg.WindowSeconds) * time.Second)

	st.mu.Lock()
	filtered := make([]event, 0, len(st.events))
	for _, ev := range st.events {
		if ev.timestamp.After(windowStart) {
			filtered = append(filtered, ev)
		}
	}
	st.mu.Unlock()

	if len(filtered) == 0 {
		e.age(k, st, now)
		return
	}

	agg := e.aggregate(k, filtered, windowStart, now)
	if err := e.cache.Put(ctx, k, agg); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "aggregate cache write failed",
			slog.String("key", k.String()), slog.String("error", err.Error()))
	}

	e.age(k, st, now)
}

// aggregate computes a WindowAggregate from the filtered event sample,
// preferring digest quantiles and falling back to sorting the sample.
func (e *Engine) aggregate(k record.AggregationKey, events []event, windowStart, now time.Time) record.WindowAggregate {
	var errorCount, minLatency, maxLatency int64
	minLatency = events[0].latencyMs
	var earliest, latest time.Time
	earliest, latest = events[0].timestamp, events[0].timestamp

	for _, ev := range events {
		if ev.statusCode >= 400 {
			errorCount++
		}
		if ev.latencyMs < minLatency {
			minLatency = ev.latencyMs
		}
		if ev.latencyMs > maxLatency {
			maxLatency = ev.latencyMs
		}
		if ev.timestamp.Before(earliest) {
			earliest = ev.timestamp
		}
		if ev.timestamp.After(latest) {
			latest = ev.timestamp
		}
	}

	requestCount := int64(len(events))
	successCount := requestCount - errorCount
	errorRate := 100 * float64(errorCount) / float64(requestCount)

	p50, p90, p99 := e.percentiles(k, events)

	return record.WindowAggregate{
		Endpoint:     k.Path,
		Method:       k.Method,
		WindowStart:  windowStart,
		WindowEnd:    now,
		RequestCount: requestCount,
		RPS:          computeRPS(requestCount, earliest, latest, e.cfg.WindowSeconds),
		P50LatencyMs: p50,
		P90LatencyMs: p90,
		P99LatencyMs: p99,
		MinLatencyMs: minLatency,
		MaxLatencyMs: maxLatency,
		ErrorRate:    errorRate,
		ErrorCount:   errorCount,
		SuccessCount: successCount,
	}
}

// percentiles reads p50/p90/p99 from the digest, falling back to sorting
// the event sample and indexing at floor(N*q) when the digest is
// unavailable or empty.
func (e *Engine) percentiles(k record.AggregationKey, events []event) (p50, p90, p99 float64) {
	if v50, ok := e.digests.Quantile(k, 0.50); ok {
		if v90, ok2 := e.digests.Quantile(k, 0.90); ok2 {
			if v99, ok3 := e.digests.Quantile(k, 0.99); ok3 {
				return v50, v90, v99
			}
		}
	}

	sorted := make([]int64, len(events))
	for i, ev := range events {
		sorted[i] = ev.latencyMs
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := func(q float64) float64 {
		i := int(float64(len(sorted)) * q)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return float64(sorted[i])
	}
	return idx(0.50), idx(0.90), idx(0.99)
}

// computeRPS picks the request-rate formula based on the observed span: a
// full-second span divides directly, a sub-second span takes the larger of
// the instantaneous and window-averaged rate, and an empty span falls back
// to the window average.
func computeRPS(requestCount int64, earliest, latest time.Time, windowSeconds int) float64 {
	span := latest.Sub(earliest)
	switch {
	case span >= time.Second:
		return float64(requestCount) / span.Seconds()
	case span > 0:
		instantRPS := float64(requestCount) / span.Seconds()
		windowRPS := float64(requestCount) / float64(windowSeconds)
		return max(instantRPS, windowRPS)
	default:
		return float64(requestCount) / float64(windowSeconds)
	}
}

// age removes records older than windowSeconds+10s from the buffer and
// drops the digest (and the key's state entirely) once the buffer empties,
// transitioning the key from Active to Dormant.
func (e *Engine) age(k record.AggregationKey, st *keyState, now time.Time) {
	cutoff := now.Add(-time.Duration(e.cfg.WindowSeconds+agingGraceSeconds) * time.Second)

	st.mu.Lock()
	kept := st.events[:0]
	for _, ev := range st.events {
		if ev.timestamp.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	st.events = kept
	empty := len(st.events) == 0
	st.mu.Unlock()

	if empty {
		e.digests.Drop(k)
		e.keys.Delete(k)
	}
}

// Keys returns a snapshot of every aggregation key the engine currently
// tracks, used by the sweeper to schedule periodic recomputes.
func (e *Engine) Keys() []record.AggregationKey {
	var keys []record.AggregationKey
	e.keys.Range(func(key, _ any) bool {
		keys = append(keys, key.(record.AggregationKey))
		return true
	})
	return keys
}
