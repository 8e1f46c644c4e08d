package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mljobs/internal/apperrors"
	"mljobs/internal/artifact"
	"mljobs/internal/job"
)

// Memory is an in-memory store for tests and single-process deployments.
// A single RWMutex guards the maps; mutations hold the write lock for the
// duration of the transition callback, which keeps the check-and-write
// atomic per record.
type Memory struct {
	mu     sync.RWMutex
	jobs   map[string]*job.Record
	models map[string]*artifact.Model
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*job.Record),
		models: make(map[string]*artifact.Model),
	}
}

// Create persists a new record.
func (m *Memory) Create(ctx context.Context, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[rec.ID]; exists {
		return apperrors.Internal("store.create", errDuplicateID(rec.ID))
	}
	m.jobs[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record.
func (m *Memory) Get(ctx context.Context, id string) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return rec.Clone(), nil
}

// Mutate applies fn to the record under the write lock.
func (m *Memory) Mutate(ctx context.Context, id string, fn job.Mutation) (*job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}

	next := stored.Clone()
	model, err := fn(next)
	if err != nil {
		return nil, err
	}

	m.jobs[id] = next
	if model != nil {
		m.models[id] = model
	}
	return next.Clone(), nil
}

// GetModel returns the model record for a job.
func (m *Memory) GetModel(ctx context.Context, jobID string) (*artifact.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	model, ok := m.models[jobID]
	if !ok {
		return nil, apperrors.NotFound("model", jobID)
	}
	cp := *model
	return &cp, nil
}

// ListBySubmitter returns records for a submitter, newest first.
func (m *Memory) ListBySubmitter(ctx context.Context, submitter string) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*job.Record
	for _, rec := range m.jobs {
		if rec.Spec.SubmittedBy == submitter {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListStalePending returns pending records created before the cutoff.
func (m *Memory) ListStalePending(ctx context.Context, cutoff time.Time) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*job.Record
	for _, rec := range m.jobs {
		if rec.Status == job.StatePending && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type errDuplicateID string

func (e errDuplicateID) Error() string { return "duplicate job id " + string(e) }

var _ job.Store = (*Memory)(nil)
