package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSweepInterval is how often expired events are removed when the
// configuration does not say otherwise.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically runs the relay's expiration pass. It is a plain
// scheduled task: the administrative trigger and the timer both converge
// on Relay.Sweep, which is idempotent.
type Sweeper struct {
	relay    *Relay
	clock    clock.Clock
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper creates a sweeper over the relay's clock.
func NewSweeper(r *Relay, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		relay:    r,
		clock:    r.clock,
		interval: interval,
		log:      r.log,
	}
}

// Run ticks until the context is canceled. A failed or panicking pass is
// logged and retried on the next tick; it never propagates to connection
// handling.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("sweep panicked", "panic", rec)
		}
	}()

	deleted, err := s.relay.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Info("swept expired events", "deleted", deleted)
	}
}
