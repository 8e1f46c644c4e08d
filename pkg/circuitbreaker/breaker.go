// Package circuitbreaker implements a circuit breaker for a single
// downstream endpoint.
//
// The breaker tracks consecutive failures and temporarily rejects calls to a
// failing endpoint so callers can fail fast instead of burning their timeout
// on every attempt.
//
// States:
//   - Closed: normal operation, calls allowed
//   - Open: too many failures, calls rejected until the cooldown elapses
//   - HalfOpen: cooldown elapsed, probe calls allowed to test recovery
package circuitbreaker

import (
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning. Zero values use defaults.
type Config struct {
	Threshold int           // consecutive failures before opening (default: 5)
	Cooldown  time.Duration // wait before probing again (default: 30s)
}

// Breaker guards calls to one endpoint.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	threshold   int
	cooldown    time.Duration
	now         func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     Closed,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call should be attempted. When the cooldown has
// elapsed on an open breaker, it moves to half-open and allows a probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.lastFailure) > b.cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// RecordFailure counts a failure. A failed half-open probe reopens the
// breaker immediately; in the closed state the threshold applies.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
