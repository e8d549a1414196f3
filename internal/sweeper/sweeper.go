package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-grounds/internal/logger"
)

// Store is the slice of the reservation store the sweeper needs.
type Store interface {
	CompleteElapsed(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper promotes confirmed reservations whose window has elapsed to
// completed. It is a plain ticker loop: per-tick failures are logged and
// retried next tick, never propagated, so the loop outlives any single
// infrastructure fault.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *logger.Logger

	now func() time.Time
}

func New(store Store, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled. One immediate sweep runs
// on startup so a restart doesn't wait a full interval to catch up.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.logger.LogSweep(fmt.Sprintf("Lifecycle sweeper started, interval %s", s.interval))
		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.LogSweep("Lifecycle sweeper stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one promotion batch. Re-running on already-completed rows is a
// no-op; they no longer match the selection predicate.
func (s *Sweeper) Sweep(ctx context.Context) {
	completed, err := s.store.CompleteElapsed(ctx, s.now())
	if err != nil {
		s.logger.Error("SWEEPER", fmt.Sprintf("Sweep failed, will retry next tick: %v", err))
		return
	}
	if completed > 0 {
		s.logger.LogSweep(fmt.Sprintf("Promoted %d elapsed reservations to completed", completed))
	}
}
