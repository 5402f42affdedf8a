package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweep prunes the store once with the current retention limits.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	maxAge, maxCount := s.Retention.Get()
	n, err := s.Store.Cleanup(ctx, maxAge, maxCount)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("history pruned", "removed", n, "max_age", maxAge, "max_entries", maxCount)
	}
	return n, nil
}

// RunMaintenance sweeps immediately and then every interval until ctx is
// cancelled. Failed sweeps are logged and retried on the next interval.
func (s *Service) RunMaintenance(ctx context.Context, interval time.Duration) error {
	if _, err := s.Sweep(ctx); err != nil {
		slog.Warn("startup cleanup failed", "err", err)
	}
	if interval <= 0 {
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Warn("cleanup failed", "err", err)
			}
		}
	}
}
