// Package artifact holds trained-model artifact types and the blob store
// that persists serialized model bytes by opaque reference.
package artifact

import (
	"context"
	"time"
)

// FeatureWeight is one entry of a feature-importance ranking.
type FeatureWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Model is the durable output of a successful training job. It is created
// atomically with the job's completed transition and never mutated afterward.
//
// Metrics is keyed by metric name; classification and regression jobs carry
// different sets (accuracy/precision/recall/f1_score/roc_auc vs rmse/mae/r2).
type Model struct {
	JobID                string             `json:"jobId"`
	Algorithm            string             `json:"algorithm"`
	ProblemType          string             `json:"problemType"`
	Metrics              map[string]float64 `json:"metrics"`
	FeatureImportance    []FeatureWeight    `json:"featureImportance,omitempty"`
	ModelRef             string             `json:"modelRef"`
	TrainingDurationSecs int                `json:"trainingDurationSecs,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
}

// Store persists model blobs by reference. Implementations must treat refs
// as opaque handles minted by Put.
type Store interface {
	// Put stores a blob and returns its reference.
	Put(ctx context.Context, data []byte) (string, error)

	// Exists reports whether a reference resolves to a stored blob.
	Exists(ctx context.Context, ref string) (bool, error)

	// Get returns the blob for a reference.
	Get(ctx context.Context, ref string) ([]byte, error)
}
