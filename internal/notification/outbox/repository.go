// Package outbox persists admin notifications that must be delivered once,
// written in the same transaction as the state change that caused them.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

const (
	KindAdminAlert       = "admin_alert"
	TemplateVIPUltraHigh = "vip_ultra_high_intent"
)

const defaultClaimBatch = 50

var errNotConfigured = errors.New("outbox repository not configured")

const recordColumns = `id, kind, template, payload, run_at, status, attempts`

type Record struct {
	ID       uuid.UUID
	Kind     string
	Template string
	Payload  json.RawMessage
	RunAt    time.Time
	Status   Status
	Attempts int
}

// Message is a notification waiting to be written.
type Message struct {
	Kind     string
	Template string
	Payload  any
	RunAt    time.Time
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Add writes msg as pending through q and returns its id.
func Add(ctx context.Context, q Querier, msg Message) (uuid.UUID, error) {
	if msg.Kind == "" || msg.Template == "" {
		return uuid.Nil, fmt.Errorf("outbox message needs kind and template, got %q/%q", msg.Kind, msg.Template)
	}
	if msg.RunAt.IsZero() {
		msg.RunAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	var id uuid.UUID
	err = q.QueryRow(ctx,
		`INSERT INTO notification_outbox (kind, template, payload, run_at, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id`,
		msg.Kind, msg.Template, payload, msg.RunAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox message: %w", err)
	}
	return id, nil
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ClaimPending moves up to limit due pending messages to enqueued. Rows locked
// by a concurrent dispatcher are skipped.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errNotConfigured
	}
	if limit < 1 {
		limit = defaultClaimBatch
	}

	rows, err := r.pool.Query(ctx,
		`UPDATE notification_outbox
		 SET status = 'enqueued', updated_at = now()
		 WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = 'pending' AND run_at <= now()
			ORDER BY run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+recordColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending outbox: %w", err)
	}
	return records, nil
}

// ClaimForDelivery moves a pending or enqueued message to processing. It
// reports false when the message was already claimed or settled.
func (r *Repository) ClaimForDelivery(ctx context.Context, id uuid.UUID) (Record, bool, error) {
	if r == nil || r.pool == nil {
		return Record{}, false, errNotConfigured
	}

	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`UPDATE notification_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'enqueued')
		 RETURNING `+recordColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("claim outbox %s: %w", id, err)
	}
	return rec, true, nil
}

// MarkPending hands an enqueued message back to the dispatcher.
func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.transition(ctx, id, StatusEnqueued, StatusPending, lastError)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusProcessing, StatusSucceeded, nil)
}

// MarkFailed settles a message for good; failed messages are not retried.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.transition(ctx, id, StatusProcessing, StatusFailed, &lastError)
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, from, to Status, lastError *string) error {
	if r == nil || r.pool == nil {
		return errNotConfigured
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = $3, last_error = $4, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), lastError,
	)
	if err != nil {
		return fmt.Errorf("mark outbox %s %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox %s is not %s", id, from)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &status, &rec.Attempts); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}
