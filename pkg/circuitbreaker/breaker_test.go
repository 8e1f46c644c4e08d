package circuitbreaker

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	b := New(Config{Threshold: threshold, Cooldown: cooldown})
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(3, time.Minute)

	for range 2 {
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Fatalf("state = %v before threshold, want closed", b.State())
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v at threshold, want open", b.State())
	}
	if b.Allow() {
		t.Error("Allow() = true on open breaker, want false")
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	t.Parallel()
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("Allow() = true immediately after opening")
	}

	*now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("Allow() = false after cooldown, want probe allowed")
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b, now := newTestBreaker(5, time.Minute)

	// Drive to open, then to half-open.
	for range 5 {
		b.RecordFailure()
	}
	*now = now.Add(2 * time.Minute)
	b.Allow()

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v after failed probe, want open", b.State())
	}
}

func TestBreaker_SuccessCloses(t *testing.T) {
	t.Parallel()
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	b.Allow()
	b.RecordSuccess()

	if b.State() != Closed {
		t.Fatalf("state = %v after successful probe, want closed", b.State())
	}
	if !b.Allow() {
		t.Error("Allow() = false on closed breaker")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
