// Package events defines the lead scoring and notification events exchanged
// over the bus in platform/events.
package events

import (
	"concierge_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Score Domain Events
// =============================================================================

// LeadScoreSynced is published after every successful sync.
type LeadScoreSynced struct {
	BaseEvent
	SessionID string `json:"sessionId"`
	Score     int    `json:"score"`
	Tier      string `json:"tier"`
	IsVIP     bool   `json:"isVip"`
	Created   bool   `json:"created"`
}

func (e LeadScoreSynced) EventName() string { return "leadscores.synced" }

// VIPAlertCreated is published when a session escalates to a new VIP severity.
type VIPAlertCreated struct {
	BaseEvent
	AlertID   uuid.UUID `json:"alertId"`
	SessionID string    `json:"sessionId"`
	AlertType string    `json:"alertType"`
	Score     int       `json:"score"`
	Tier      string    `json:"tier"`
	Email     *string   `json:"email,omitempty"`
}

func (e VIPAlertCreated) EventName() string { return "leadscores.vip_alert.created" }

// VIPAlertStatusChanged is published after an admin moves an alert through review.
type VIPAlertStatusChanged struct {
	BaseEvent
	AlertID   uuid.UUID `json:"alertId"`
	SessionID string    `json:"sessionId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
}

func (e VIPAlertStatusChanged) EventName() string { return "leadscores.vip_alert.status_changed" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published when an outbox message is ready for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
