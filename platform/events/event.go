// Package events is the in-process publish/subscribe bus modules use to react
// to each other without importing each other.
package events

import (
	"context"
	"time"
)

type Event interface {
	// EventName is the subscription key, e.g. "leadscores.synced".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by concrete events for the timestamp.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

type Bus interface {
	// Publish fans out asynchronously. Handler errors are logged only.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler in order and returns the first error.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
