package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"signalgate/internal/cache"
	"signalgate/internal/config"
	"signalgate/internal/digest"
	"signalgate/internal/engine"
	"signalgate/internal/ingest"
	"signalgate/internal/kv"
	"signalgate/internal/metriccache"
	"signalgate/internal/queryapi"
	"signalgate/internal/rawstore"
	"signalgate/internal/server"
	"signalgate/internal/telemetry"
	"signalgate/internal/worker"
)

func runAnalytics(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting signalgate analytics", "version", version, "addr", cfg.Analytics.Server.Addr)

	ctx := context.Background()

	rawStore, err := rawstore.Open(ctx, rawstore.Config{
		DSN:         cfg.Postgres.DSN,
		MaxConns:    cfg.Postgres.MaxConns,
		AutoMigrate: cfg.Postgres.AutoMigrate,
	})
	if err != nil {
		return err
	}
	defer rawStore.Close()
	slog.Info("raw store opened")

	redisClient, err := kv.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	metricCache := metriccache.New(cache.NewRedis(redisClient))
	digests := digest.New()

	eng := engine.New(engine.Config{
		WindowSeconds:         cfg.Analytics.Metrics.WindowSeconds,
		AggregationIntervalMs: cfg.Analytics.Metrics.AggregationIntervalMs,
		MinComputeIntervalMs:  cfg.Analytics.Metrics.MinComputeIntervalMs,
	}, metricCache, digests)
	sweeper := engine.NewSweeper(eng)

	sink := rawstore.NewSink(rawStore, rawstore.SinkConfig{
		QueueCapacity:   cfg.Analytics.Queue.Capacity,
		BatchSize:       cfg.Analytics.Batch.Size,
		FlushIntervalMs: cfg.Analytics.Batch.FlushIntervalMs,
		Workers:         cfg.Analytics.Workers,
	})

	runner := worker.NewRunner(eng, sweeper, sink)

	queryHandler := queryapi.New(metricCache, rawStore)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.NewMetrics(promRegistry)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	ingestHandler := ingest.New(sink, eng, metrics)

	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, "signalgate-analytics", cfg.Tracing.Endpoint, cfg.Tracing.SampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("signalgate/analytics")
			slog.Info("opentelemetry tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sample_rate", cfg.Tracing.SampleRate)
		}
	}

	handler := server.NewAnalytics(server.AnalyticsDeps{
		Ingest: ingestHandler,
		Query:  queryHandler,

		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     rawStore.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Analytics.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Analytics.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Analytics.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runner.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("signalgate analytics ready", "addr", cfg.Analytics.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Analytics.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting new ingest/query requests before draining the
	// compute engine and raw-store worker pool, so nothing new arrives
	// mid-drain.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerCancel()
		return err
	}

	workerCancel()
	if err := <-workerDone; err != nil {
		slog.Error("worker shutdown error", "error", err)
	}

	if tracingShutdown != nil {
		if err := tracingShutdown(shutdownCtx); err != nil {
			slog.Error("tracing shutdown error", "error", err)
		}
	}

	slog.Info("signalgate analytics stopped")
	return nil
}
