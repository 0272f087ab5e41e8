package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type tokenPruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// runPruner sweeps expired token rows every interval until ctx is done.
// Redeem never accepts an expired row, so a missed sweep only costs space.
func runPruner(ctx context.Context, p tokenPruner, interval time.Duration, now func() time.Time, lg *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PruneExpired(ctx, now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				lg.Warn("token prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("expired tokens pruned", zap.Int64("rows", n))
			}
		}
	}
}
