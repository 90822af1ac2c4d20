package quota

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/gridpaint/internal/services/canvas/domain"
)

// Scheduler runs the replenishment pass at a fixed interval. Passes run
// synchronously inside the loop, so a slow pass delays the next tick instead
// of overlapping it.
type Scheduler struct {
	ledger   *Ledger
	interval time.Duration

	// onPass, when set, runs after each successful pass. The server uses it
	// to push updated balances to connected sessions.
	onPass func(ctx context.Context)
}

// NewScheduler builds a scheduler over the ledger. A non-positive interval
// falls back to the default replenishment cadence.
func NewScheduler(ledger *Ledger, interval time.Duration, onPass func(ctx context.Context)) *Scheduler {
	if interval <= 0 {
		interval = domain.DefaultReplenishSeconds * time.Second
	}
	return &Scheduler{
		ledger:   ledger,
		interval: interval,
		onPass:   onPass,
	}
}

// Run loops until ctx is cancelled. A failed pass is logged and the loop
// keeps going; the next tick retries.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	if err := s.ledger.ReplenishAll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("replenishment pass failed: %v", err)
		return
	}
	if s.onPass != nil {
		s.onPass(ctx)
	}
}
