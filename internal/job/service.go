package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/dataset"
	"mljobs/internal/executor"
	"mljobs/internal/observability"
)

// ExecutorClient delivers a dispatch request to the training executor.
// At most one outbound call per invocation; a non-nil error is a delivery
// failure, never a training outcome.
type ExecutorClient interface {
	Dispatch(ctx context.Context, req *executor.DispatchRequest) error
}

// ProblemType values accepted in a job specification.
const (
	ProblemClassification = "classification"
	ProblemRegression     = "regression"
)

// algorithms maps each problem type to its supported algorithm set.
var algorithms = map[string]map[string]bool{
	ProblemClassification: {
		"logistic_regression": true,
		"random_forest":       true,
		"gradient_boosting":   true,
		"knn":                 true,
	},
	ProblemRegression: {
		"linear_regression": true,
		"random_forest":     true,
		"gradient_boosting": true,
		"knn":               true,
	},
}

// ServiceConfig configures the dispatcher.
type ServiceConfig struct {
	// CallbackBase is the externally reachable base URL of this service;
	// the executor posts status updates to CallbackBase + the update path.
	CallbackBase string

	// HandoffTimeout bounds the synchronous dispatch call (default: 5s).
	HandoffTimeout time.Duration
}

// Service is the job dispatcher: it validates specifications, persists the
// authoritative record, and hands the job to the training executor. Submit
// never blocks longer than the hand-off timeout, and a failed hand-off is
// reported as a delivery warning on the receipt, not an error.
type Service struct {
	store    Store
	datasets dataset.Store
	exec     ExecutorClient
	metrics  *observability.Metrics
	logger   *slog.Logger

	callbackBase   string
	handoffTimeout time.Duration
	now            func() time.Time
}

// NewService creates the dispatcher.
func NewService(store Store, datasets dataset.Store, exec ExecutorClient, metrics *observability.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	timeout := cfg.HandoffTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		store:          store,
		datasets:       datasets,
		exec:           exec,
		metrics:        metrics,
		logger:         logger,
		callbackBase:   cfg.CallbackBase,
		handoffTimeout: timeout,
		now:            time.Now,
	}
}

// Submit validates the specification, persists a pending record, and hands
// the job off to the executor. The returned receipt always carries the job
// ID; if the hand-off fails the receipt carries a delivery warning and the
// record stays pending, eligible for redispatch.
func (s *Service) Submit(ctx context.Context, spec Spec) (*Receipt, error) {
	if err := s.validate(ctx, spec); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Spec:      spec,
		Status:    StatePending,
		Progress:  0,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx, spec.Algorithm)
	}
	s.logger.Info("job submitted",
		slog.String("job_id", rec.ID),
		slog.String("algorithm", spec.Algorithm),
		slog.String("problem_type", spec.ProblemType),
		slog.String("submitted_by", spec.SubmittedBy),
	)

	return s.handOff(ctx, rec)
}

// Redispatch re-attempts the executor hand-off for a job still pending.
// Jobs in any other state are rejected with a transition error.
func (s *Service) Redispatch(ctx context.Context, jobID string) (*Receipt, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatePending {
		return nil, apperrors.Transition(jobID, rec.Status, StatePending)
	}
	return s.handOff(ctx, rec)
}

// handOff makes the bounded one-shot dispatch call and records the attempt.
// The attempt counter is bumped regardless of outcome so the sweeper can
// back off between retries.
func (s *Service) handOff(ctx context.Context, rec *Record) (*Receipt, error) {
	req := &executor.DispatchRequest{
		JobID:             rec.ID,
		DatasetRef:        rec.Spec.DatasetID,
		TargetColumn:      rec.Spec.TargetColumn,
		Algorithm:         rec.Spec.Algorithm,
		ProblemType:       rec.Spec.ProblemType,
		Hyperparameters:   rec.Spec.Hyperparameters,
		SplitRatio:        rec.Spec.SplitRatio,
		ResultCallbackRef: s.callbackBase + "/internal/jobs/" + rec.ID + "/updates",
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.handoffTimeout)
	defer cancel()

	start := s.now()
	dispatchErr := s.exec.Dispatch(dispatchCtx, req)
	elapsed := s.now().Sub(start)

	if s.metrics != nil {
		s.metrics.RecordDispatch(ctx, dispatchErr == nil, elapsed.Seconds())
	}

	attemptAt := s.now().UTC()
	if _, err := s.store.Mutate(ctx, rec.ID, func(r *Record) (*artifact.Model, error) {
		// A fast executor can complete the job before the bookkeeping
		// write; terminal records stay untouched.
		if r.Terminal() {
			return nil, nil
		}
		r.DispatchAttempts++
		r.LastDispatchAt = &attemptAt
		return nil, nil
	}); err != nil {
		// The hand-off bookkeeping is advisory; losing it must not turn a
		// delivered dispatch into a client-visible error.
		s.logger.Warn("dispatch bookkeeping failed",
			slog.String("job_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	receipt := &Receipt{
		JobID:    rec.ID,
		Status:   StatePending,
		Delivery: DeliveryDelivered,
	}
	if dispatchErr != nil {
		receipt.Delivery = DeliveryWarning
		receipt.Warning = dispatchErr.Error()
		s.logger.Warn("executor hand-off failed",
			slog.String("job_id", rec.ID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", dispatchErr.Error()),
		)
		return receipt, nil
	}

	s.logger.Info("job dispatched",
		slog.String("job_id", rec.ID),
		slog.Duration("elapsed", elapsed),
	)
	return receipt, nil
}

// GetStatus returns the polling snapshot for a job.
func (s *Service) GetStatus(ctx context.Context, jobID string) (Snapshot, error) {
	rec, err := s.store.Get(ctx, jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// GetModel returns the model produced by a completed job.
func (s *Service) GetModel(ctx context.Context, jobID string) (*artifact.Model, error) {
	return s.store.GetModel(ctx, jobID)
}

// List returns snapshots of a submitter's jobs, newest first.
func (s *Service) List(ctx context.Context, submitter string) ([]Snapshot, error) {
	if submitter == "" {
		return nil, apperrors.Validation("submitter", "submitter is required")
	}
	recs, err := s.store.ListBySubmitter(ctx, submitter)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Snapshot())
	}
	return out, nil
}

func (s *Service) validate(ctx context.Context, spec Spec) error {
	if spec.DatasetID == "" {
		return apperrors.Validation("datasetId", "dataset reference is required")
	}
	if spec.SubmittedBy == "" {
		return apperrors.Validation("submittedBy", "submitter is required")
	}
	if spec.TargetColumn == "" {
		return apperrors.Validation("targetColumn", "target column is required")
	}
	if spec.SplitRatio <= 0 || spec.SplitRatio >= 1 {
		return apperrors.Validation("splitRatio", "split ratio must be strictly between 0 and 1")
	}

	supported, ok := algorithms[spec.ProblemType]
	if !ok {
		return apperrors.Validation("problemType", "problem type must be classification or regression")
	}
	if !supported[spec.Algorithm] {
		return apperrors.Validation("algorithm", "algorithm "+spec.Algorithm+" is not supported for "+spec.ProblemType)
	}

	schema, err := s.datasets.FetchSchema(ctx, spec.DatasetID)
	if err != nil {
		return err
	}
	if !schema.HasColumn(spec.TargetColumn) {
		return apperrors.Validation("targetColumn", "column "+spec.TargetColumn+" not present in dataset")
	}
	return nil
}
