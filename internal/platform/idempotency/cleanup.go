package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleanup deletes expired records every interval until ctx is cancelled. Each tick keeps
// deleting batches of batchSize while full batches come back.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, batchSize int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = defaultCleanup
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total := 0
			for {
				removed, err := store.CleanupExpired(ctx, now, batchSize)
				total += removed
				if err != nil {
					logger.Warn("idempotency cleanup failed", zap.Error(err), zap.Int("removed", total))
					break
				}
				if removed < batchSize {
					break
				}
			}
			if total > 0 {
				logger.Info("idempotency records expired", zap.Int("removed", total))
			}
		}
	}
}
