// Package trainersim implements a simulated training executor for local
// development and end-to-end tests. It accepts dispatch requests, fakes a
// training run with progress reports, writes a model artifact, and posts
// signed status updates back to the jobs service.
package trainersim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"mljobs/internal/artifact"
	"mljobs/internal/dataset"
	"mljobs/internal/executor"
	"mljobs/internal/job"
)

// Config for the simulator.
type Config struct {
	SigningKey string        // HMAC key shared with the jobs service
	StepDelay  time.Duration // pause between progress reports (default: 200ms)
	Artifacts  artifact.Store
	Datasets   dataset.Store
	Logger     *slog.Logger
}

// Simulator is the fake training executor. One goroutine per accepted job;
// dispatches are deduplicated by job ID so redeliveries never start a
// second run.
type Simulator struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	accepted map[string]bool

	wg sync.WaitGroup
}

// New creates a simulator.
func New(cfg Config) *Simulator {
	if cfg.StepDelay <= 0 {
		cfg.StepDelay = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Simulator{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		accepted: make(map[string]bool),
	}
}

// Handler returns the dispatch endpoint handler.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /dispatch", s.handleDispatch)
	return mux
}

// Wait blocks until all accepted training runs have finished.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

func (s *Simulator) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !executor.VerifySignature(body, s.cfg.SigningKey, r.Header.Get(executor.SignatureHeader)) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req executor.DispatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid dispatch request", http.StatusBadRequest)
		return
	}
	if req.JobID == "" || req.ResultCallbackRef == "" {
		http.Error(w, "jobId and resultCallbackRef are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.accepted[req.JobID] {
		s.mu.Unlock()
		// Redelivered dispatch: the run is already in flight.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.accepted[req.JobID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.train(context.Background(), req)
	}()

	w.WriteHeader(http.StatusAccepted)
}

// train fakes a training run: progress reports, a model artifact, then the
// completion report with metrics and feature importances.
func (s *Simulator) train(ctx context.Context, req executor.DispatchRequest) {
	logger := s.cfg.Logger.With(slog.String("job_id", req.JobID))
	start := time.Now()

	for _, progress := range []int{10, 35, 60, 85} {
		s.postUpdate(ctx, logger, req, job.Update{Status: job.StateRunning, Progress: progress})
		time.Sleep(s.cfg.StepDelay)
	}

	ref, err := s.cfg.Artifacts.Put(ctx, s.modelBytes(req))
	if err != nil {
		logger.Error("Failed to write model artifact", "error", err)
		s.postUpdate(ctx, logger, req, job.Update{
			Status:      job.StateFailed,
			Progress:    85,
			ErrorDetail: "failed to persist model: " + err.Error(),
		})
		return
	}

	s.postUpdate(ctx, logger, req, job.Update{
		Status:               job.StateCompleted,
		Progress:             100,
		ResultRef:            ref,
		Metrics:              fakeMetrics(req.ProblemType),
		FeatureImportance:    s.featureImportance(ctx, req),
		TrainingDurationSecs: int(time.Since(start).Seconds()) + 1,
	})
	logger.Info("Training run finished", "result_ref", ref)
}

func (s *Simulator) postUpdate(ctx context.Context, logger *slog.Logger, req executor.DispatchRequest, upd job.Update) {
	body, err := json.Marshal(upd)
	if err != nil {
		logger.Error("Failed to marshal update", "error", err)
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.ResultCallbackRef, bytes.NewReader(body))
	if err != nil {
		logger.Error("Failed to build update request", "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(executor.SignatureHeader, executor.Sign(body, s.cfg.SigningKey))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		logger.Warn("Failed to deliver update", "status", upd.Status, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logger.Warn("Update rejected", "status", upd.Status, "code", resp.StatusCode)
	}
}

func (s *Simulator) modelBytes(req executor.DispatchRequest) []byte {
	return fmt.Appendf(nil, "model %s/%s for job %s\n", req.ProblemType, req.Algorithm, req.JobID)
}

// featureImportance spreads random weights over the non-target dataset
// columns, normalized to sum to one.
func (s *Simulator) featureImportance(ctx context.Context, req executor.DispatchRequest) []artifact.FeatureWeight {
	schema, err := s.cfg.Datasets.FetchSchema(ctx, req.DatasetRef)
	if err != nil {
		return nil
	}

	var names []string
	for _, col := range schema.Columns {
		if col != req.TargetColumn {
			names = append(names, col)
		}
	}
	if len(names) == 0 {
		return nil
	}

	weights := make([]float64, len(names))
	var total float64
	for i := range weights {
		weights[i] = rand.Float64() + 0.05
		total += weights[i]
	}

	out := make([]artifact.FeatureWeight, len(names))
	for i, name := range names {
		out[i] = artifact.FeatureWeight{Name: name, Weight: weights[i] / total}
	}
	return out
}

// fakeMetrics draws plausible evaluation metrics for the problem type.
func fakeMetrics(problemType string) map[string]float64 {
	if problemType == "regression" {
		return map[string]float64{
			"rmse": 0.5 + rand.Float64()*2,
			"mae":  0.3 + rand.Float64(),
			"r2":   0.6 + rand.Float64()*0.35,
		}
	}
	base := 0.75 + rand.Float64()*0.2
	return map[string]float64{
		"accuracy":  base,
		"precision": base - 0.02 + rand.Float64()*0.04,
		"recall":    base - 0.03 + rand.Float64()*0.04,
		"f1_score":  base - 0.02 + rand.Float64()*0.03,
		"roc_auc":   base + 0.02 + rand.Float64()*0.03,
	}
}
