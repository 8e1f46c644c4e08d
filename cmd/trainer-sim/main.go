// trainer-sim is a simulated training executor for local development. It
// accepts dispatch requests from the jobs service and reports progress,
// model artifacts, and evaluation metrics back over signed callbacks.
package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mljobs/internal/artifact"
	"mljobs/internal/config"
	"mljobs/internal/dataset"
	"mljobs/internal/trainersim"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Trainer simulator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	port := config.GetEnv("PORT", "9000")
	stepDelay := config.GetDurationEnv("STEP_DELAY", 200*time.Millisecond)
	signingKey := config.GetSecretFile(config.GetEnv("SIGNING_KEY_FILE", ""))
	datasetDir := config.GetEnv("DATASET_DIR", "/data/datasets")
	artifactDir := config.GetEnv("ARTIFACT_DIR", "/data/models")

	artifacts, err := artifact.NewFS(artifactDir)
	if err != nil {
		return err
	}

	sim := trainersim.New(trainersim.Config{
		SigningKey: signingKey,
		StepDelay:  stepDelay,
		Artifacts:  artifacts,
		Datasets:   dataset.NewFS(datasetDir),
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      sim.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting trainer simulator", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		return err
	}

	server.Close()
	// Let in-flight training runs post their final reports.
	sim.Wait()
	slog.Info("Shutdown complete")
	return nil
}
