package job

import (
	"context"
	"log/slog"
	"time"

	"mljobs/pkg/backoff"
)

// SweeperConfig configures the redispatch sweep. Zero values use defaults.
type SweeperConfig struct {
	// Interval between sweep passes (default: 30s).
	Interval time.Duration

	// MinAge a pending record must reach before the sweep considers it
	// stuck (default: 1m).
	MinAge time.Duration

	// MaxAttempts caps hand-off attempts per job; jobs past the cap are
	// left pending for an operator to redispatch manually (default: 5).
	MaxAttempts int

	// Backoff spaces successive hand-off attempts for the same job.
	Backoff backoff.Config
}

// Sweeper periodically re-attempts the executor hand-off for pending jobs
// that never made it out. It only redispatches: a job the sweep gives up on
// stays pending and visible, it is never failed on the executor's behalf.
type Sweeper struct {
	svc    *Service
	store  Store
	logger *slog.Logger
	cfg    SweeperConfig

	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

// NewSweeper creates a sweeper. Call Start to begin sweeping.
func NewSweeper(svc *Service, store Store, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Sweeper{
		svc:    svc,
		store:  store,
		logger: logger,
		cfg:    cfg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the sweep loop in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep runs a single pass and returns the number of jobs redispatched.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.MinAge)
	stale, err := s.store.ListStalePending(ctx, cutoff)
	if err != nil {
		s.logger.Error("sweep listing failed", slog.String("error", err.Error()))
		return 0
	}

	redispatched := 0
	for _, rec := range stale {
		if !s.due(rec) {
			continue
		}
		receipt, err := s.svc.Redispatch(ctx, rec.ID)
		if err != nil {
			// Records can go terminal between the listing and the
			// redispatch; that is the race resolving itself, not a fault.
			s.logger.Debug("sweep redispatch skipped",
				slog.String("job_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if receipt.Delivery == DeliveryDelivered {
			redispatched++
		}
	}

	if redispatched > 0 {
		s.logger.Info("sweep pass complete",
			slog.Int("stale", len(stale)),
			slog.Int("redispatched", redispatched),
		)
	}
	return redispatched
}

// due reports whether a stale record is eligible for another hand-off:
// under the attempt cap and past the backoff window of its last attempt.
func (s *Sweeper) due(rec *Record) bool {
	if rec.DispatchAttempts >= s.cfg.MaxAttempts {
		return false
	}
	if rec.LastDispatchAt == nil {
		return true
	}
	wait := backoff.Delay(rec.DispatchAttempts, s.cfg.Backoff)
	return s.now().After(rec.LastDispatchAt.Add(wait))
}
