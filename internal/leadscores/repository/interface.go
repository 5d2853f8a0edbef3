package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadScoreSyncer is the only write path for lead score records.
type LeadScoreSyncer interface {
	// Sync merges and rescores a session atomically. Escalation alerts and the
	// admin notification are claimed with conditional writes in the same
	// transaction, so concurrent syncs never produce duplicates.
	Sync(ctx context.Context, params SyncParams, evaluate Evaluator) (SyncOutcome, error)
	// MarkOrlaEngaged flips orla_engaged once; true only for the flipping caller.
	MarkOrlaEngaged(ctx context.Context, sessionID string) (bool, error)
}

// LeadScoreReader provides read-only access to lead score records.
type LeadScoreReader interface {
	GetBySession(ctx context.Context, sessionID string) (LeadScoreRecord, error)
	ListLeadScores(ctx context.Context, filter LeadScoreFilter) ([]LeadScoreRecord, int, error)
}

// AlertReader provides side-effect free alert queries.
type AlertReader interface {
	ListAlerts(ctx context.Context, filter AlertFilter) ([]VIPAlert, int, error)
	GetAlert(ctx context.Context, id uuid.UUID) (VIPAlert, error)
	GetStats(ctx context.Context) (Stats, error)
}

// AlertWriter applies review decisions.
type AlertWriter interface {
	// UpdateAlertStatus changes status only if it still equals params.From.
	// The bool is false when another writer got there first.
	UpdateAlertStatus(ctx context.Context, params UpdateAlertStatusParams) (VIPAlert, bool, error)
}

// RetentionCleaner removes stale anonymous sessions.
type RetentionCleaner interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is everything the lead score service needs.
type Store interface {
	LeadScoreSyncer
	LeadScoreReader
	AlertReader
	AlertWriter
	RetentionCleaner
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*Memory)(nil)
)
