//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mljobs/internal/api"
	"mljobs/internal/artifact"
	"mljobs/internal/dataset"
	"mljobs/internal/executor"
	"mljobs/internal/health"
	"mljobs/internal/job"
	"mljobs/internal/store"
	"mljobs/internal/testutil"
	"mljobs/internal/trainersim"
)

const signingKey = "e2e-signing-key"

// env wires a full jobs service against a simulated trainer over real HTTP.
type env struct {
	jobsURL     string
	jobs        job.Store
	trainerDown atomic.Bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jobs := store.NewMemory()
	artifacts := artifact.NewMem()
	datasets := dataset.NewMem()
	datasets.Add("housing.csv", dataset.Schema{
		Columns: []string{"sqft", "rooms", "age", "price"},
	}, nil)

	e := &env{jobs: jobs}

	sim := trainersim.New(trainersim.Config{
		SigningKey: signingKey,
		StepDelay:  5 * time.Millisecond,
		Artifacts:  artifacts,
		Datasets:   datasets,
		Logger:     logger,
	})
	simHandler := sim.Handler()
	trainer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.trainerDown.Load() {
			http.Error(w, "trainer offline", http.StatusServiceUnavailable)
			return
		}
		simHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(trainer.Close)

	// The jobs server URL is needed for the callback base before the
	// server exists, so start an unstarted server and wire it up after.
	jobsServer := httptest.NewUnstartedServer(nil)
	callbackBase := "http://" + jobsServer.Listener.Addr().String()

	execClient := executor.New(executor.Config{
		Endpoint:   trainer.URL + "/dispatch",
		Timeout:    2 * time.Second,
		SigningKey: signingKey,
	})
	svc := job.NewService(jobs, datasets, execClient, nil, logger, job.ServiceConfig{
		CallbackBase: callbackBase,
	})
	reconciler := job.NewReconciler(jobs, artifacts, nil, logger)

	jobsServer.Config.Handler = api.NewRouter(api.RouterConfig{
		JobService:    svc,
		Reconciler:    reconciler,
		HealthChecker: health.NewChecker(jobs),
		SigningKey:    signingKey,
	})
	jobsServer.Start()
	t.Cleanup(func() {
		jobsServer.Close()
		sim.Wait()
	})

	e.jobsURL = jobsServer.URL
	return e
}

func (e *env) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	resp, err := http.Post(e.jobsURL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (e *env) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.jobsURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func submitBody() map[string]any {
	return map[string]any{
		"datasetId":    "housing.csv",
		"targetColumn": "price",
		"algorithm":    "gradient_boosting",
		"problemType":  "regression",
		"splitRatio":   0.8,
		"submittedBy":  "carol",
	}
}

func TestTrainingLifecycle(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post(t, "/v1/jobs", submitBody())
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, body = %s", resp.StatusCode, body)
	}

	var receipt job.Receipt
	json.Unmarshal(body, &receipt)
	if receipt.Delivery != job.DeliveryDelivered {
		t.Fatalf("receipt = %+v, want delivered", receipt)
	}

	testutil.MustWaitForStatus(t, e.jobs, receipt.JobID, job.StateCompleted,
		testutil.WithTimeout(10*time.Second))

	resp, body = e.get(t, "/v1/jobs/"+receipt.JobID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var snap job.Snapshot
	json.Unmarshal(body, &snap)
	if snap.Progress != 100 || snap.ResultRef == "" || snap.CompletedAt == nil {
		t.Errorf("snapshot = %+v", snap)
	}

	resp, body = e.get(t, "/v1/jobs/"+receipt.JobID+"/model")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get model status = %d, body = %s", resp.StatusCode, body)
	}
	var model artifact.Model
	json.Unmarshal(body, &model)
	for _, metric := range []string{"rmse", "mae", "r2"} {
		if _, ok := model.Metrics[metric]; !ok {
			t.Errorf("model metrics missing %s: %+v", metric, model.Metrics)
		}
	}
	if len(model.FeatureImportance) != 3 {
		t.Errorf("feature importance = %+v, want the three non-target columns", model.FeatureImportance)
	}
	if model.TrainingDurationSecs <= 0 {
		t.Errorf("training duration = %d, want positive", model.TrainingDurationSecs)
	}
}

func TestDeliveryWarningAndRedispatch(t *testing.T) {
	e := newEnv(t)
	e.trainerDown.Store(true)

	resp, body := e.post(t, "/v1/jobs", submitBody())
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, body = %s", resp.StatusCode, body)
	}

	var receipt job.Receipt
	json.Unmarshal(body, &receipt)
	if receipt.Delivery != job.DeliveryWarning || receipt.JobID == "" {
		t.Fatalf("receipt = %+v, want a delivery warning with a job id", receipt)
	}

	// The record survives the failed hand-off.
	resp, body = e.get(t, "/v1/jobs/"+receipt.JobID)
	var snap job.Snapshot
	json.Unmarshal(body, &snap)
	if snap.Status != job.StatePending {
		t.Fatalf("status = %s, want pending after failed hand-off", snap.Status)
	}

	e.trainerDown.Store(false)

	resp, body = e.post(t, "/v1/jobs/"+receipt.JobID+"/dispatches", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("redispatch status = %d, body = %s", resp.StatusCode, body)
	}
	var again job.Receipt
	json.Unmarshal(body, &again)
	if again.Delivery != job.DeliveryDelivered {
		t.Fatalf("redispatch receipt = %+v, want delivered", again)
	}

	testutil.MustWaitForStatus(t, e.jobs, receipt.JobID, job.StateCompleted,
		testutil.WithTimeout(10*time.Second))
}

func TestDuplicateDispatchSingleRun(t *testing.T) {
	e := newEnv(t)

	resp, body := e.post(t, "/v1/jobs", submitBody())
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	var receipt job.Receipt
	json.Unmarshal(body, &receipt)

	// Redispatch races the trainer's first report; whichever wins, the
	// trainer dedupes by job ID and the record converges on one completion.
	e.post(t, "/v1/jobs/"+receipt.JobID+"/dispatches", nil)

	testutil.MustWaitForStatus(t, e.jobs, receipt.JobID, job.StateCompleted,
		testutil.WithTimeout(10*time.Second))

	_, body = e.get(t, "/v1/jobs/"+receipt.JobID+"/model")
	var model artifact.Model
	json.Unmarshal(body, &model)
	if model.JobID != receipt.JobID {
		t.Errorf("model job id = %s, want %s", model.JobID, receipt.JobID)
	}
}
