// jobs-service is the HTTP API server for training-job orchestration.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mljobs/internal/api"
	"mljobs/internal/artifact"
	"mljobs/internal/config"
	"mljobs/internal/dataset"
	"mljobs/internal/executor"
	"mljobs/internal/health"
	"mljobs/internal/job"
	"mljobs/internal/observability"
	"mljobs/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Open the job record store
	jobStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer jobStore.Close()
	slog.Info("Job store ready", "backend", cfg.StoreBackend)

	// Dataset and artifact collaborators
	datasets := dataset.NewFS(cfg.DatasetDir)
	artifacts, err := artifact.NewFS(cfg.ArtifactDir)
	if err != nil {
		return err
	}

	// Executor hand-off client
	execClient := executor.New(executor.Config{
		Endpoint:   cfg.ExecutorURL,
		Timeout:    cfg.ExecutorTimeout,
		SigningKey: cfg.SigningKey,
	})

	logger := slog.Default()

	jobService := job.NewService(jobStore, datasets, execClient, metrics, logger, job.ServiceConfig{
		CallbackBase:   cfg.CallbackBaseURL,
		HandoffTimeout: cfg.ExecutorTimeout,
	})
	reconciler := job.NewReconciler(jobStore, artifacts, metrics, logger)

	// Optional redispatch sweep for jobs stuck in pending
	var sweeper *job.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = job.NewSweeper(jobService, jobStore, logger, job.SweeperConfig{
			Interval:    cfg.Sweep.Interval,
			MinAge:      cfg.Sweep.MinAge,
			MaxAttempts: cfg.Sweep.MaxAttempts,
		})
		sweeper.Start(ctx)
		slog.Info("Redispatch sweep enabled", "interval", cfg.Sweep.Interval)
	}

	healthChecker := health.NewChecker(jobStore)

	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Reconciler:    reconciler,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
		SigningKey:    cfg.SigningKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}
	if cfg.SigningKey == "" {
		slog.Warn("Update signature verification disabled - no SIGNING_KEY configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Stop the sweep so no new hand-offs start mid-shutdown
	if sweeper != nil {
		sweeper.Stop()
	}

	// Phase 3: Graceful shutdown - finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Training jobs keep running on the executor; it will retry its status
	// reports against the next instance.
	slog.Info("Shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config.ServiceConfig) (job.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		return store.NewPostgres(ctx, cfg.PostgresDSN)
	case "redis":
		return store.NewRedis(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
