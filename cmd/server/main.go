package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"paydispatch/internal/api"
	"paydispatch/internal/config"
	"paydispatch/internal/dispatch"
	"paydispatch/internal/health"
	"paydispatch/internal/queue"
	"paydispatch/internal/store"
	"paydispatch/internal/telemetry"
	"paydispatch/internal/upstream"
	"paydispatch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := setupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.TelemetryEnabled, cfg.TelemetryService, cfg.JaegerURL)
	if err != nil {
		log.Fatalf("failed to init telemetry: %v", err)
	}
	defer shutdownTracing(context.Background())

	st, err := store.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer st.Close()

	if cfg.PurgeOnStart {
		if err := st.PurgeAll(ctx); err != nil {
			logger.Warn("startup purge failed", "error", err)
		} else {
			logger.Info("startup purge complete")
		}
	}

	client := upstream.New(upstream.Config{
		DefaultURL:       cfg.DefaultProcessorURL,
		FallbackURL:      cfg.FallbackProcessorURL,
		DefaultTimeout:   cfg.DefaultTimeout,
		FallbackTimeout:  cfg.FallbackTimeout,
		Concurrency:      cfg.UpstreamConcurrency,
		TelemetryEnabled: cfg.TelemetryEnabled,
	})

	sampler := health.New(client, st, logger, cfg.HealthSampleInterval)
	samplerCtx, cancelSampler := context.WithCancel(ctx)
	go sampler.Run(samplerCtx)

	q := queue.New()
	policy := dispatch.New(client, st, sampler, logger)
	pool := worker.New(q, policy, logger, cfg.NumWorkers)
	pool.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	if cfg.TelemetryEnabled {
		e.Use(otelecho.Middleware(cfg.TelemetryService))
	}
	api.New(e, q, st)

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}()
	logger.Info("listening", "addr", addr)

	<-ctx.Done()
	logger.Info("shutting down")

	for i := 0; i < cfg.NumWorkers; i++ {
		q.PutStop()
	}
	pool.Wait()

	cancelSampler()
	client.Close()

	if err := e.Shutdown(context.Background()); err != nil {
		logger.Error("echo shutdown error", "error", err)
	}
}

func setupLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}
