package services

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper force-concludes game sessions whose deadline has passed.
type SessionSweeper interface {
	ExpireOverdueSessions(ctx context.Context) error
}

// RunSessionSweeper drives the sweeper on a fixed interval until the context
// is cancelled. It blocks, so callers run it in its own goroutine.
func RunSessionSweeper(ctx context.Context, sweeper SessionSweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("overdue session sweeper started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("overdue session sweeper stopped")
			return
		case <-ticker.C:
			if err := sweeper.ExpireOverdueSessions(ctx); err != nil {
				logger.Error("sweeper run failed", slog.Any("error", err))
			}
		}
	}
}
