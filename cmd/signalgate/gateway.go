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
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel/trace"

	"signalgate/internal/auth"
	"signalgate/internal/circuitbreaker"
	"signalgate/internal/config"
	"signalgate/internal/emitter"
	"signalgate/internal/kv"
	"signalgate/internal/ratelimit"
	"signalgate/internal/route"
	"signalgate/internal/server"
	"signalgate/internal/telemetry"
	"signalgate/internal/worker"
)

func runGateway(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting signalgate gateway", "version", version, "addr", cfg.Gateway.Server.Addr)

	ctx := context.Background()

	redisClient, err := kv.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	rateLimitStore := ratelimit.NewRedisStore(redisClient)
	rateLimiter := ratelimit.New(rateLimitStore, cfg.Gateway.RateLimit.DefaultRequestsPerMinute)
	slog.Info("rate limit configured", "default_rpm", cfg.Gateway.RateLimit.DefaultRequestsPerMinute)

	routeEntries := make([]route.Entry, len(cfg.Gateway.Routes))
	for i, r := range cfg.Gateway.Routes {
		routeEntries[i] = route.Entry{RouteID: r.RouteID, Prefix: r.Prefix, Service: r.Service, Target: r.Target}
		slog.Info("route configured", "id", r.RouteID, "prefix", r.Prefix, "target", r.Target)
	}
	routes := route.NewTable(routeEntries)

	dnsResolver := &dnscache.Resolver{}
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(true)
		}
	}()

	transport := route.NewTransport(dnsResolver, true)
	upstreamClient := &http.Client{Transport: transport, Timeout: cfg.Gateway.Server.WriteTimeout}
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	executor := route.NewExecutor(upstreamClient, breakers)

	var telemetryEmitter *emitter.Emitter
	var workers []worker.Worker
	if cfg.Gateway.Telemetry.Enabled {
		telemetryEmitter = emitter.New(&http.Client{Transport: transport}, emitter.Config{
			QueueCapacity:   cfg.Gateway.Telemetry.QueueCapacity,
			BatchSize:       cfg.Gateway.Telemetry.BatchSize,
			FlushIntervalMs: cfg.Gateway.Telemetry.BatchFlushIntervalMs,
			AnalyticsURL:    cfg.Gateway.Telemetry.AnalyticsURL,
		})
		workers = append(workers, telemetryEmitter)
		slog.Info("telemetry emitter configured", "analytics_url", cfg.Gateway.Telemetry.AnalyticsURL)
	}
	runner := worker.NewRunner(workers...)

	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRegistry.MustRegister(collectors.NewGoCollector())
	metrics = telemetry.NewMetrics(promRegistry)
	metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	var tracer trace.Tracer
	var tracingShutdown func(context.Context) error
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, "signalgate-gateway", cfg.Tracing.Endpoint, cfg.Tracing.SampleRate)
		if err != nil {
			slog.Warn("tracing setup failed, continuing without tracing", "error", err)
		} else {
			tracingShutdown = shutdown
			tracer = telemetry.Tracer("signalgate/gateway")
			slog.Info("opentelemetry tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sample_rate", cfg.Tracing.SampleRate)
		}
	}

	var emitterDep server.TelemetryEmitter
	if telemetryEmitter != nil {
		emitterDep = telemetryEmitter
	}

	handler := server.NewGateway(server.GatewayDeps{
		Auth:        auth.New(),
		RateLimiter: rateLimiter,
		Routes:      routes,
		Executor:    executor,
		Emitter:     emitterDep,
		SkipPaths:   cfg.Gateway.Auth.SkipPaths,

		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Tracer:         tracer,
		ReadyCheck:     func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	srv := &http.Server{
		Addr:              cfg.Gateway.Server.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.Gateway.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Gateway.Server.WriteTimeout,
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

	slog.Info("signalgate gateway ready", "addr", cfg.Gateway.Server.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		workerCancel()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting new requests first so no new telemetry is produced
	// after the emitter starts its final drain.
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

	slog.Info("signalgate gateway stopped")
	return nil
}
