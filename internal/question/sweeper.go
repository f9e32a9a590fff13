package question

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically runs Registry.Sweep to reclaim memory. Expiry remains
// correct without it; reads commit expiry lazily.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	fallback string
	now      func() time.Time
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(registry *Registry, interval time.Duration, fallback string) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		fallback: fallback,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		log.Info().Msg("question sweeper disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	expired, purged := s.registry.Sweep(s.now(), s.fallback)
	if expired > 0 || purged > 0 {
		log.Debug().
			Int("expired", expired).
			Int("purged", purged).
			Int("remaining", s.registry.Len()).
			Msg("question sweep")
	}
}
