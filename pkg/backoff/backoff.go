// Package backoff provides exponential backoff with optional jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
	Jitter  float64       // fraction of the delay randomized, 0..1 (default: 0)
}

// Delay calculates the backoff for a given attempt. Attempt 1 returns
// Initial, attempt 2 twice that, capped at Max. With Jitter j, the result is
// uniformly drawn from [d*(1-j), d].
func Delay(attempt int, cfg Config) time.Duration {
	initial := 100 * time.Millisecond
	maxDelay := 5 * time.Second
	if cfg.Initial > 0 {
		initial = cfg.Initial
	}
	if cfg.Max > 0 {
		maxDelay = cfg.Max
	}

	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}

	if cfg.Jitter > 0 {
		j := min(cfg.Jitter, 1.0)
		d -= d * j * rand.Float64()
	}
	return time.Duration(d)
}
