// Package testutil provides polling helpers for asynchronous assertions.
package testutil

import (
	"context"
	"testing"
	"time"

	"mljobs/internal/job"
)

// WaitOptions configures WaitFor behavior.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for WaitFor.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 10s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 25ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func defaultOptions() WaitOptions {
	return WaitOptions{
		Timeout:  10 * time.Second,
		Interval: 25 * time.Millisecond,
	}
}

// WaitFor polls until condition returns true or timeout is reached.
// Returns true if condition was met, false on timeout.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	deadline := time.Now().Add(o.Timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(o.Interval)
	}
	return false
}

// MustWaitFor polls until condition returns true or fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustWaitForStatus polls the store until the job reaches the wanted status
// or fails the test on timeout.
func MustWaitForStatus(tb testing.TB, store job.Store, jobID, status string, opts ...WaitOption) {
	tb.Helper()

	var last string
	ok := WaitFor(tb, func() bool {
		rec, err := store.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		last = rec.Status
		return rec.Status == status
	}, opts...)
	if !ok {
		tb.Fatalf("timed out waiting for job %s to reach %s (last seen: %s)", jobID, status, last)
	}
}
