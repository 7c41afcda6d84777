// Package emitter implements the gateway-side telemetry emitter. It is a
// non-blocking, bounded-queue batch worker that POSTs accumulated
// TelemetryRecords to the analytics service's ingest endpoint, with
// exponential backoff retry for transient failures.
package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"signalgate/internal/record"
)

// Config controls the bounded queue, batching, and target URL.
type Config struct {
	QueueCapacity   int
	BatchSize       int
	FlushIntervalMs int
	AnalyticsURL    string
}

const (
	drainTimeout   = 5 * time.Second
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
)

// Emitter buffers TelemetryRecords from the gateway filter chain and
// batch-flushes them to the analytics service over HTTP.
type Emitter struct {
	cfg    Config
	client *http.Client
	queue  chan record.TelemetryRecord

	dropped atomic.Int64
}

// New builds an Emitter posting through client, which should carry the
// DNS-caching transport from internal/route.NewTransport.
func New(client *http.Client, cfg Config) *Emitter {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1_000_000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1_000
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 500
	}
	return &Emitter{
		cfg:    cfg,
		client: client,
		queue:  make(chan record.TelemetryRecord, cfg.QueueCapacity),
	}
}

// Name identifies this worker for the runner's startup log.
func (e *Emitter) Name() string { return "telemetry_emitter" }

// Emit offers r to the queue without blocking. A full queue drops the
// record and counts it; telemetry is best-effort, never on the gateway's
// request-serving critical path.
func (e *Emitter) Emit(r record.TelemetryRecord) {
	select {
	case e.queue <- r:
	default:
		e.dropped.Add(1)
	}
}

// Dropped returns the cumulative count of records dropped for a full queue
// or exhausted flush retries.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Run drains the queue until ctx is cancelled, flushing on a size or time
// trigger, then performs one bounded final drain.
func (e *Emitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(e.cfg.FlushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	buf := make([]record.TelemetryRecord, 0, e.cfg.BatchSize)

	for {
		select {
		case r := <-e.queue:
			buf = append(buf, r)
			if len(buf) >= e.cfg.BatchSize {
				e.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			if len(buf) > 0 {
				e.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ctx.Done():
			e.drain(buf)
			return nil
		}
	}
}

func (e *Emitter) drain(buf []record.TelemetryRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case r := <-e.queue:
			buf = append(buf, r)
			if len(buf) >= e.cfg.BatchSize {
				e.flush(ctx, buf)
				buf = buf[:0]
			}
		case <-ctx.Done():
			if len(buf) > 0 {
				e.flush(ctx, buf)
			}
			return
		default:
			if len(buf) > 0 {
				e.flush(ctx, buf)
			}
			return
		}
	}
}

// flush copies buf and POSTs it as one JSON array, retrying transient
// failures with exponential backoff starting at 200ms for up to 3 attempts.
// A 4xx response is not retried: the batch is malformed and resubmission
// will not help.
func (e *Emitter) flush(ctx context.Context, buf []record.TelemetryRecord) {
	batch := make([]record.TelemetryRecord, len(buf))
	copy(batch, buf)

	body, err := json.Marshal(batch)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "telemetry batch marshal failed",
			slog.String("error", err.Error()))
		e.dropped.Add(int64(len(batch)))
		return
	}

	backoff := initialBackoff
	var lastErr error
retryLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := e.post(ctx, body)
		if err == nil {
			return
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				break retryLoop
			}
			backoff *= 2
		}
	}

	slog.LogAttrs(ctx, slog.LevelWarn, "telemetry batch flush failed, dropping",
		slog.Int("count", len(batch)), slog.String("error", lastErr.Error()))
	e.dropped.Add(int64(len(batch)))
}

// clientError marks a 4xx response as non-retriable.
type clientError struct{ status int }

func (c *clientError) Error() string { return fmt.Sprintf("ingest rejected batch: status %d", c.status) }

func isTransient(err error) bool {
	var ce *clientError
	return !errors.As(err, &ce)
}

func (e *Emitter) post(ctx context.Context, body []byte) error {
	url := e.cfg.AnalyticsURL + "/api/v1/telemetry/ingest/batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &clientError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}
	return nil
}
