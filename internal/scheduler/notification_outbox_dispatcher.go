package scheduler

import (
	"context"
	"time"

	"concierge_backend/internal/notification/outbox"
	"concierge_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	dispatchInterval  = 2 * time.Second
	dispatchBatchSize = 50
)

// OutboxClaimer hands out due messages and takes back ones that could not be enqueued.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// OutboxEnqueuer schedules delivery of a claimed message.
type OutboxEnqueuer interface {
	EnqueueOutboxDue(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error
}

// NotificationOutboxDispatcher polls the outbox and enqueues delivery tasks.
type NotificationOutboxDispatcher struct {
	repo     OutboxClaimer
	enqueuer OutboxEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(repo OutboxClaimer, enqueuer OutboxEnqueuer, log *logger.Logger) *NotificationOutboxDispatcher {
	return &NotificationOutboxDispatcher{
		repo:     repo,
		enqueuer: enqueuer,
		log:      log,
		interval: dispatchInterval,
	}
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.repo == nil || d.enqueuer == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatch(ctx)
	}
}

// dispatch runs one claim-and-enqueue pass and returns how many tasks were queued.
func (d *NotificationOutboxDispatcher) dispatch(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, dispatchBatchSize)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		if err := d.enqueuer.EnqueueOutboxDue(ctx, rec.ID, rec.RunAt); err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Error("outbox release failed", "outboxId", rec.ID.String(), "error", markErr)
			}
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID.String(), "error", err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		d.log.Debug("outbox messages enqueued", "count", enqueued)
	}
	return enqueued
}
