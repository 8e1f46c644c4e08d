// Package job contains the training-job domain types and the orchestration
// core: the dispatcher, the status reconciler, and the redispatch sweeper.
package job

import (
	"time"

	"mljobs/internal/artifact"
)

// State constants for the job lifecycle.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Terminal reports whether a state permits no further transitions.
func Terminal(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// Spec is a request to train a model. Immutable once dispatched.
type Spec struct {
	DatasetID       string         `json:"datasetId"`
	TargetColumn    string         `json:"targetColumn"`
	Algorithm       string         `json:"algorithm"`
	ProblemType     string         `json:"problemType"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty"`
	SplitRatio      float64        `json:"splitRatio"`
	SubmittedBy     string         `json:"submittedBy"`
}

// Record is the authoritative state of a job. All mutation goes through the
// store's atomic Mutate so concurrent updates cannot interleave.
type Record struct {
	ID          string     `json:"id"`
	Spec        Spec       `json:"spec"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	ResultRef   string     `json:"resultRef,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Delivery bookkeeping for redispatch of stuck pending jobs.
	DispatchAttempts int        `json:"dispatchAttempts"`
	LastDispatchAt   *time.Time `json:"lastDispatchAt,omitempty"`
}

// Terminal reports whether the record is in a terminal state.
func (r *Record) Terminal() bool {
	return Terminal(r.Status)
}

// Clone returns a deep copy of the record. Stores hand clones to mutation
// callbacks so a failed mutation never leaks partial writes.
func (r *Record) Clone() *Record {
	c := *r
	if r.Spec.Hyperparameters != nil {
		c.Spec.Hyperparameters = make(map[string]any, len(r.Spec.Hyperparameters))
		for k, v := range r.Spec.Hyperparameters {
			c.Spec.Hyperparameters[k] = v
		}
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.LastDispatchAt != nil {
		t := *r.LastDispatchAt
		c.LastDispatchAt = &t
	}
	return &c
}

// Snapshot is the read-only view returned to polling clients. It is a value
// copy: concurrent reconciliation never produces a torn read.
type Snapshot struct {
	JobID        string     `json:"jobId"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	DatasetRef   string     `json:"datasetRef"`
	SubmitterRef string     `json:"submitterRef"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ResultRef    string     `json:"resultRef,omitempty"`
	ErrorDetail  string     `json:"errorDetail,omitempty"`
}

// Snapshot builds the polling view from the record.
func (r *Record) Snapshot() Snapshot {
	s := Snapshot{
		JobID:        r.ID,
		Status:       r.Status,
		Progress:     r.Progress,
		DatasetRef:   r.Spec.DatasetID,
		SubmitterRef: r.Spec.SubmittedBy,
		CreatedAt:    r.CreatedAt,
		ResultRef:    r.ResultRef,
		ErrorDetail:  r.ErrorDetail,
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		s.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// Update is an inbound status report from the training executor.
// Delivery is at-least-once: duplicates and reordering are expected.
type Update struct {
	Status               string                   `json:"status"`
	Progress             int                      `json:"progress"`
	ResultRef            string                   `json:"resultRef,omitempty"`
	Metrics              map[string]float64       `json:"metrics,omitempty"`
	FeatureImportance    []artifact.FeatureWeight `json:"featureImportance,omitempty"`
	ErrorDetail          string                   `json:"errorDetail,omitempty"`
	TrainingDurationSecs int                      `json:"trainingDurationSecs,omitempty"`
}

// Delivery outcomes reported in a submit/redispatch receipt.
const (
	DeliveryDelivered = "delivered"
	DeliveryWarning   = "warning"
)

// Receipt is returned from submit and redispatch. The job ID is always
// present once the record is persisted; a delivery warning means the
// hand-off failed but the job remains pending and eligible for redispatch.
type Receipt struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Delivery string `json:"delivery"`
	Warning  string `json:"warning,omitempty"`
}

// ListResponse wraps snapshots for the list endpoint.
type ListResponse struct {
	Jobs []Snapshot `json:"jobs"`
}
