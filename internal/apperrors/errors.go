// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrTransition = errors.New("invalid transition")
	ErrDelivery   = errors.New("delivery failed")
	ErrInternal   = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "splitRatio", "targetColumn")
	Resource string // For not found errors (e.g., "job", "model")
	Op       string // Operation that failed (e.g., "executor.dispatch")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Transition creates an invalid state transition error.
// The stored record is never mutated when this is returned.
func Transition(jobID, from, to string) error {
	return &Error{
		Sentinel: ErrTransition,
		Message:  fmt.Sprintf("job %s: illegal transition %s -> %s", jobID, from, to),
		Resource: "job",
	}
}

// Delivery creates a hand-off delivery error. The job record survives the
// failure in pending state; callers surface this as a warning, not a job failure.
func Delivery(op string, cause error) error {
	return &Error{
		Sentinel: ErrDelivery,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
