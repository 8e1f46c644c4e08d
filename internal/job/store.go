package job

import (
	"context"
	"time"

	"mljobs/internal/artifact"
)

// Mutation is applied to a clone of the current record inside one atomic
// unit. Mutating the record and returning a nil model commits the record;
// returning a non-nil model additionally persists it in the same unit (used
// by the completed transition). Returning an error aborts: the stored record
// is left untouched. Returning (nil, nil) without touching the record is a
// no-op commit, used to absorb duplicate terminal updates.
type Mutation func(rec *Record) (*artifact.Model, error)

// Store is the durable job record store. Implementations live in
// internal/store (memory, Postgres, Redis).
//
// Mutate runs the caller's transition logic and the write as one atomic unit
// keyed by job ID. Records for different IDs are fully independent;
// implementations must not take cross-job locks.
type Store interface {
	// Create persists a new record. The ID must be unused.
	Create(ctx context.Context, rec *Record) error

	// Get returns a copy of the record, or a not found error.
	Get(ctx context.Context, id string) (*Record, error)

	// Mutate applies fn to the record atomically and returns the resulting
	// record. Concurrent Mutate calls for the same ID serialize; for
	// different IDs they do not contend.
	Mutate(ctx context.Context, id string, fn Mutation) (*Record, error)

	// GetModel returns the model artifact record produced by a job.
	GetModel(ctx context.Context, jobID string) (*artifact.Model, error)

	// ListBySubmitter returns records for a submitter, newest first.
	ListBySubmitter(ctx context.Context, submitter string) ([]*Record, error)

	// ListStalePending returns pending records created before the cutoff,
	// oldest first. Used by the redispatch sweep.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*Record, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
