package scheduler

import (
	"context"
	"time"

	"concierge_backend/platform/logger"
)

const (
	defaultLeadScoreCleanupInterval = time.Hour
	defaultLeadScoreRetention       = 90 * 24 * time.Hour
)

// InactiveCleaner removes anonymous sessions idle for longer than retention.
type InactiveCleaner interface {
	CleanupInactive(ctx context.Context, retention time.Duration) (int64, error)
}

// LeadScoreCleanup periodically removes stale non-VIP lead score sessions.
type LeadScoreCleanup struct {
	cleaner   InactiveCleaner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewLeadScoreCleanup(cleaner InactiveCleaner, log *logger.Logger, interval, retention time.Duration) *LeadScoreCleanup {
	if interval <= 0 {
		interval = defaultLeadScoreCleanupInterval
	}
	if retention <= 0 {
		retention = defaultLeadScoreRetention
	}

	return &LeadScoreCleanup{
		cleaner:   cleaner,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (c *LeadScoreCleanup) Run(ctx context.Context) {
	if c == nil || c.cleaner == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *LeadScoreCleanup) cleanup(ctx context.Context) int64 {
	deleted, err := c.cleaner.CleanupInactive(ctx, c.retention)
	if err != nil {
		c.log.Warn("lead score cleanup failed", "error", err)
		return 0
	}

	if deleted > 0 {
		c.log.Info("lead score cleanup deleted inactive sessions", "deleted", deleted, "retention", c.retention.String())
	}
	return deleted
}
