package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/job"
)

func newRecord(id, submitter string, createdAt time.Time) *job.Record {
	return &job.Record{
		ID: id,
		Spec: job.Spec{
			DatasetID:    "churn.csv",
			TargetColumn: "label",
			Algorithm:    "random_forest",
			ProblemType:  "classification",
			SplitRatio:   0.8,
			SubmittedBy:  submitter,
		},
		Status:    job.StatePending,
		CreatedAt: createdAt,
	}
}

func TestMemory_CreateGet(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	rec := newRecord("j1", "alice", time.Now())
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatePending || got.Progress != 0 {
		t.Errorf("got status=%s progress=%d, want pending/0", got.Status, got.Progress)
	}

	// Returned record is a copy; mutating it must not leak into the store.
	got.Status = job.StateFailed
	again, _ := s.Get(ctx, "j1")
	if again.Status != job.StatePending {
		t.Error("Get returned a live reference, want a copy")
	}
}

func TestMemory_GetUnknown(t *testing.T) {
	t.Parallel()
	s := NewMemory()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemory_MutateAbortLeavesRecordUntouched(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	s.Create(ctx, newRecord("j1", "alice", time.Now()))

	boom := errors.New("rejected")
	_, err := s.Mutate(ctx, "j1", func(rec *job.Record) (*artifact.Model, error) {
		rec.Status = job.StateRunning
		rec.Progress = 50
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	got, _ := s.Get(ctx, "j1")
	if got.Status != job.StatePending || got.Progress != 0 {
		t.Errorf("aborted mutation leaked: status=%s progress=%d", got.Status, got.Progress)
	}
}

func TestMemory_MutatePersistsModelAtomically(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	s.Create(ctx, newRecord("j1", "alice", time.Now()))

	now := time.Now()
	_, err := s.Mutate(ctx, "j1", func(rec *job.Record) (*artifact.Model, error) {
		rec.Status = job.StateCompleted
		rec.Progress = 100
		rec.ResultRef = "m1"
		rec.CompletedAt = &now
		return &artifact.Model{
			JobID:     "j1",
			Algorithm: rec.Spec.Algorithm,
			Metrics:   map[string]float64{"accuracy": 0.91},
			ModelRef:  "m1",
			CreatedAt: now,
		}, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	model, err := s.GetModel(ctx, "j1")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if model.Metrics["accuracy"] != 0.91 {
		t.Errorf("accuracy = %v, want 0.91", model.Metrics["accuracy"])
	}
}

func TestMemory_ConcurrentProgressKeepsMax(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	rec := newRecord("j1", "alice", time.Now())
	rec.Status = job.StateRunning
	s.Create(ctx, rec)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 1; i <= n; i++ {
		go func(p int) {
			defer wg.Done()
			s.Mutate(ctx, "j1", func(rec *job.Record) (*artifact.Model, error) {
				if p > rec.Progress {
					rec.Progress = p
				}
				return nil, nil
			})
		}(i * 2)
	}
	wg.Wait()

	got, _ := s.Get(ctx, "j1")
	if got.Progress != n*2 {
		t.Errorf("final progress = %d, want %d (max of submitted values)", got.Progress, n*2)
	}
}

func TestMemory_ListBySubmitter(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	base := time.Now()

	s.Create(ctx, newRecord("j1", "alice", base))
	s.Create(ctx, newRecord("j2", "alice", base.Add(time.Minute)))
	s.Create(ctx, newRecord("j3", "bob", base))

	recs, err := s.ListBySubmitter(ctx, "alice")
	if err != nil {
		t.Fatalf("ListBySubmitter: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].ID != "j2" || recs[1].ID != "j1" {
		t.Errorf("order = [%s, %s], want newest first [j2, j1]", recs[0].ID, recs[1].ID)
	}
}

func TestMemory_ListStalePending(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()
	base := time.Now()

	old := newRecord("old", "alice", base.Add(-time.Hour))
	fresh := newRecord("fresh", "alice", base)
	running := newRecord("running", "alice", base.Add(-time.Hour))
	running.Status = job.StateRunning

	s.Create(ctx, old)
	s.Create(ctx, fresh)
	s.Create(ctx, running)

	recs, err := s.ListStalePending(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStalePending: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "old" {
		t.Fatalf("got %v, want only the stale pending record", recs)
	}
}
