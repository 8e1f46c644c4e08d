package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/observability"
)

// ErrorArtifactMissing is recorded on a job whose completion report pointed
// at a result artifact that does not exist.
const ErrorArtifactMissing = "artifact missing"

// timeNow is overridable in tests.
var timeNow = time.Now

// Reconciler applies executor status reports to job records. Delivery from
// the executor is at-least-once, so duplicates and reordering are normal:
// progress only moves forward, terminal records absorb same-status
// duplicates silently, and everything else that would rewind a record is
// rejected.
type Reconciler struct {
	store     Store
	artifacts artifact.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, artifacts artifact.Store, metrics *observability.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		artifacts: artifacts,
		metrics:   metrics,
		logger:    logger,
	}
}

// ApplyUpdate reconciles one status report against the job record and
// returns the resulting snapshot.
//
// Rules, in order:
//   - Only running, completed, and failed are acceptable reported states,
//     and a failed report must carry an error detail.
//   - A completed report whose result artifact cannot be resolved is
//     converted to a failure: the model is gone, so claiming success would
//     hand the client a dead reference.
//   - On a terminal record, a duplicate report of the same state is absorbed
//     as a no-op; a report of any other state is an illegal transition.
//   - Progress is clamped to [0,100] and never moves backward.
func (r *Reconciler) ApplyUpdate(ctx context.Context, jobID string, upd Update) (Snapshot, error) {
	switch upd.Status {
	case StateRunning, StateCompleted, StateFailed:
	default:
		r.recordRejected(ctx, "validation")
		return Snapshot{}, apperrors.Validation("status", "status must be running, completed, or failed")
	}

	// A failure report without a reason would leave a terminal record that
	// cannot be diagnosed. The artifact-missing rewrite below supplies its
	// own detail, so only executor-reported failures are checked here.
	if upd.Status == StateFailed && upd.ErrorDetail == "" {
		r.recordRejected(ctx, "validation")
		return Snapshot{}, apperrors.Validation("errorDetail", "a failure report requires an error detail")
	}

	// Resolve the artifact before taking the record mutation: the existence
	// check is I/O and must not run under the store's atomic section.
	if upd.Status == StateCompleted {
		ok, err := r.resolveArtifact(ctx, upd.ResultRef)
		if err != nil {
			return Snapshot{}, err
		}
		if !ok {
			r.logger.Warn("completion report references missing artifact",
				slog.String("job_id", jobID),
				slog.String("result_ref", upd.ResultRef),
			)
			upd.Status = StateFailed
			upd.ErrorDetail = ErrorArtifactMissing
			upd.ResultRef = ""
		}
	}

	var absorbed bool
	rec, err := r.store.Mutate(ctx, jobID, func(rec *Record) (*artifact.Model, error) {
		return r.apply(rec, upd, &absorbed)
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			r.recordRejected(ctx, "unknown_job")
		case errors.Is(err, apperrors.ErrTransition):
			r.recordRejected(ctx, "illegal_transition")
		}
		return Snapshot{}, err
	}

	if absorbed {
		if r.metrics != nil {
			r.metrics.RecordUpdateAbsorbed(ctx)
		}
		r.logger.Debug("duplicate terminal report absorbed",
			slog.String("job_id", jobID),
			slog.String("status", upd.Status),
		)
		return rec.Snapshot(), nil
	}

	if r.metrics != nil {
		r.metrics.RecordUpdateApplied(ctx, rec.Status)
		if rec.Terminal() && rec.CompletedAt != nil {
			r.metrics.RecordJobTerminal(ctx, rec.Spec.Algorithm,
				rec.Status == StateCompleted,
				rec.CompletedAt.Sub(rec.CreatedAt).Seconds())
		}
	}
	r.logger.Info("update applied",
		slog.String("job_id", jobID),
		slog.String("status", rec.Status),
		slog.Int("progress", rec.Progress),
	)
	return rec.Snapshot(), nil
}

// apply runs inside the store's atomic mutation.
func (r *Reconciler) apply(rec *Record, upd Update, absorbed *bool) (*artifact.Model, error) {
	if rec.Terminal() {
		if upd.Status == rec.Status {
			*absorbed = true
			return nil, nil
		}
		return nil, apperrors.Transition(rec.ID, rec.Status, upd.Status)
	}

	now := timeNow().UTC()

	switch upd.Status {
	case StateRunning:
		// StartedAt marks the first entry into running; a job that goes
		// terminal straight from pending never gets one.
		if rec.StartedAt == nil {
			rec.StartedAt = &now
		}
		rec.Status = StateRunning
		rec.Progress = clampForward(rec.Progress, upd.Progress)
		return nil, nil

	case StateFailed:
		rec.Status = StateFailed
		rec.Progress = clampForward(rec.Progress, upd.Progress)
		rec.ErrorDetail = upd.ErrorDetail
		rec.CompletedAt = &now
		return nil, nil

	case StateCompleted:
		rec.Status = StateCompleted
		rec.Progress = 100
		rec.ResultRef = upd.ResultRef
		rec.CompletedAt = &now
		return &artifact.Model{
			JobID:                rec.ID,
			Algorithm:            rec.Spec.Algorithm,
			ProblemType:          rec.Spec.ProblemType,
			Metrics:              upd.Metrics,
			FeatureImportance:    upd.FeatureImportance,
			ModelRef:             upd.ResultRef,
			TrainingDurationSecs: upd.TrainingDurationSecs,
			CreatedAt:            now,
		}, nil
	}
	return nil, apperrors.Transition(rec.ID, rec.Status, upd.Status)
}

// resolveArtifact reports whether the result reference points at a real
// artifact. An empty reference never resolves.
func (r *Reconciler) resolveArtifact(ctx context.Context, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	return r.artifacts.Exists(ctx, ref)
}

func (r *Reconciler) recordRejected(ctx context.Context, reason string) {
	if r.metrics != nil {
		r.metrics.RecordUpdateRejected(ctx, reason)
	}
}

// clampForward clamps reported progress to [0,100] and keeps the larger of
// the stored and reported values, so late or duplicated reports never move
// the bar backward.
func clampForward(stored, reported int) int {
	if reported < 0 {
		reported = 0
	}
	if reported > 100 {
		reported = 100
	}
	if reported > stored {
		return reported
	}
	return stored
}
