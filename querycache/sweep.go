package querycache

import (
	"context"
	"log/slog"
	"time"
)

// SweepInterval is the default sweep period.
const SweepInterval = time.Minute

// Sweeper periodically evicts old cache entries and bounds the context set.
// The two bounds are independent.
type Sweeper struct {
	cache    *Cache
	contexts *ContextSet
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. contexts may be nil.
func NewSweeper(c *Cache, contexts *ContextSet, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cache: c, contexts: contexts, interval: interval, now: c.now, logger: logger}
}

// Sweep runs one pass at now.
func (s *Sweeper) Sweep(now time.Time) (evicted int, reset bool) {
	evicted = s.cache.Evict(now)
	if s.contexts != nil {
		reset = s.contexts.ResetIfOver()
	}
	if evicted > 0 || reset {
		s.logger.Debug("querycache: swept", "evicted", evicted, "contexts_reset", reset)
	}
	return evicted, reset
}

// Run sweeps every interval until ctx is done, then returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(s.now())
		}
	}
}
