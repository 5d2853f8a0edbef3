package scheduler

import (
	"context"
	"time"

	"concierge_backend/internal/events"

	"github.com/google/uuid"
)

// BusEnqueuer hands claimed outbox messages straight to the in-process bus.
// The api uses it with NotificationOutboxDispatcher when no Redis is
// configured, so rows left pending by a crash or a failed claim still get
// delivered.
type BusEnqueuer struct {
	bus events.Bus
}

func NewBusEnqueuer(bus events.Bus) *BusEnqueuer {
	return &BusEnqueuer{bus: bus}
}

// EnqueueOutboxDue delivers synchronously; runAt has already passed for
// every claimed row.
func (e *BusEnqueuer) EnqueueOutboxDue(ctx context.Context, outboxID uuid.UUID, _ time.Time) error {
	return e.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}
