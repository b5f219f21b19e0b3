package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/itsupport/helpdesk/internal/storage"
)

// StartSweeper runs the stale-upload cleanup on a fixed interval until the
// context is cancelled. One sweep runs immediately on start.
func StartSweeper(ctx context.Context, manager *storage.Manager, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sweep(manager, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(manager, logger)
			}
		}
	}()
}

func sweep(manager *storage.Manager, logger *zap.Logger) {
	if removed := manager.Sweep(time.Now()); removed > 0 {
		logger.Info("removed stale uploads", zap.Int("count", removed))
	}
}
