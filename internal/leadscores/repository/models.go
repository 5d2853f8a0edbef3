package repository

import (
	"time"

	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/signals"

	"github.com/google/uuid"
)

// LeadScoreRecord is the persisted state of one session.
type LeadScoreRecord struct {
	ID             uuid.UUID
	SessionID      string
	Score          scoring.LeadScore
	Signals        signals.Snapshot
	Email          *string
	IsVIP          bool
	HighestAlert   scoring.AlertType
	VIPDetectedAt  *time.Time
	AdminNotified  bool
	OrlaEngaged    bool
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VIPAlert is a review item created when a session escalates to a new VIP severity.
type VIPAlert struct {
	ID         uuid.UUID
	SessionID  string
	Score      int
	Tier       scoring.Tier
	Signals    signals.Snapshot
	Breakdown  map[string]int
	AlertType  scoring.AlertType
	Status     alerts.Status
	Email      *string
	Notes      *string
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SyncParams carries one client sync.
type SyncParams struct {
	SessionID string
	Snapshot  signals.Snapshot
	Email     *string
	Now       time.Time
}

// Evaluation is the derived state written back by Sync.
type Evaluation struct {
	Snapshot signals.Snapshot
	Score    scoring.LeadScore
	VIP      scoring.VIPClassification
}

// Evaluator merges the incoming snapshot into the stored one (nil for a new
// session) and scores the result. It runs while the session row is locked.
type Evaluator func(stored *signals.Snapshot, incoming signals.Snapshot) Evaluation

// SyncOutcome reports what a sync changed.
type SyncOutcome struct {
	Record  LeadScoreRecord
	Created bool
	// Alert is set when this sync escalated the session to a new severity.
	Alert *VIPAlert
	// Notified is true only for the sync that flipped admin_notified.
	Notified bool
	OutboxID uuid.UUID
}

// AdminAlertPayload is the outbox body of an ultra-high-intent admin notification.
type AdminAlertPayload struct {
	AlertID   *uuid.UUID        `json:"alertId,omitempty"`
	SessionID string            `json:"sessionId"`
	Email     *string           `json:"email,omitempty"`
	Score     int               `json:"score"`
	Tier      scoring.Tier      `json:"tier"`
	Breakdown map[string]int    `json:"breakdown"`
	AlertType scoring.AlertType `json:"alertType"`
}

// LeadScoreFilter narrows ListLeadScores.
type LeadScoreFilter struct {
	Tier    *scoring.Tier
	VIPOnly bool
	Limit   int
	Offset  int
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Status    *alerts.Status
	AlertType *scoring.AlertType
	Limit     int
	Offset    int
}

// UpdateAlertStatusParams describes a conditional status change.
type UpdateAlertStatusParams struct {
	ID         uuid.UUID
	From       alerts.Status
	To         alerts.Status
	Notes      *string
	ReviewedAt time.Time
}

// Stats summarises VIP activity.
type Stats struct {
	TotalVIPs int
	NewAlerts int
	Converted int
	AvgScore  float64
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
