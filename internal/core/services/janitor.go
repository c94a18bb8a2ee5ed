package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"huddle/internal/core/ports"
)

// RunJanitor calls fn every interval until ctx is done. Errors are logged and
// the loop keeps going.
func RunJanitor(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error, logger *zap.SugaredLogger) {
	if interval <= 0 {
		logger.Warnw("janitor disabled", "name", name)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debugw("janitor started", "name", name, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Debugw("janitor stopped", "name", name)
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.Warnw("janitor run failed", "name", name, "error", err)
			}
		}
	}
}

// PresenceSweeper adapts a registry to RunJanitor.
func PresenceSweeper(r ports.PresenceRegistry) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.Sweep(ctx, r.Now())
		return err
	}
}
