package settings

import (
	"context"
	"time"
)

// Watch polls PRAGMA data_version and reloads the snapshot when another
// connection has committed, after a quiet period of the configured
// debounce. It blocks until ctx is done and returns nil.
func (s *Store) Watch(ctx context.Context) error {
	log := s.logger

	version, err := s.dataVersion(ctx)
	if err != nil {
		log.Warn("settings: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	log.Debug("settings: watching", "interval", s.interval, "debounce", s.debounce)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-ticker.C:
			cur, err := s.dataVersion(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("settings: version check failed", "error", err)
				}
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if s.debounce <= 0 {
				version = s.reload(ctx, version, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(s.debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				version = s.reload(ctx, version, pending)
				pending = -1
			}
		}
	}
}

// reload returns the version now considered current. A failed reload keeps
// the old one so the next poll retries.
func (s *Store) reload(ctx context.Context, old, next int64) int64 {
	if _, err := s.Load(ctx); err != nil {
		s.logger.Error("settings: reload failed", "error", err, "version", next)
		return old
	}
	return next
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
