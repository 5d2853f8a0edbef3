package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/internal/notification/outbox"
	"concierge_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadScoreNotFoundMsg = "lead score not found"

const leadScoreColumns = `id, session_id, score, tier, breakdown, score_version, signals,
	email, is_vip, alert_level, vip_detected_at, admin_notified, orla_engaged,
	last_activity_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Sync(ctx context.Context, params SyncParams, evaluate Evaluator) (SyncOutcome, error) {
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO lead_scores (session_id, signals_version, last_activity_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`, params.SessionID, signals.Version, now)
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("insert lead score: %w", err)
	}
	created := tag.RowsAffected() == 1

	current, level, err := scanLeadScore(tx.QueryRow(ctx,
		`SELECT `+leadScoreColumns+` FROM lead_scores WHERE session_id = $1 FOR UPDATE`,
		params.SessionID,
	))
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("lock lead score: %w", err)
	}

	var stored *signals.Snapshot
	if !created {
		snap := current.Signals
		stored = &snap
	}
	eval := evaluate(stored, params.Snapshot)

	breakdown, err := json.Marshal(eval.Score.Breakdown)
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("marshal breakdown: %w", err)
	}
	snapJSON, err := json.Marshal(eval.Snapshot)
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("marshal signals: %w", err)
	}

	record, level, err := scanLeadScore(tx.QueryRow(ctx, `
		UPDATE lead_scores SET
			score = $2,
			tier = $3,
			breakdown = $4,
			score_version = $5,
			signals = $6,
			signals_version = $7,
			email = COALESCE($8, email),
			is_vip = is_vip OR $9,
			vip_detected_at = CASE WHEN vip_detected_at IS NULL AND $9 THEN $10 ELSE vip_detected_at END,
			last_activity_at = GREATEST(last_activity_at, $10),
			updated_at = now()
		WHERE session_id = $1
		RETURNING `+leadScoreColumns,
		params.SessionID, eval.Score.Total, string(eval.Score.Tier), breakdown, eval.Score.Version,
		snapJSON, eval.Snapshot.Version, nonEmpty(params.Email), eval.VIP.IsVIP, now,
	))
	if err != nil {
		return SyncOutcome{}, fmt.Errorf("update lead score: %w", err)
	}

	outcome := SyncOutcome{Record: record, Created: created}

	if rank := eval.VIP.AlertType.Rank(); rank > level {
		tag, err := tx.Exec(ctx,
			`UPDATE lead_scores SET alert_level = $2 WHERE session_id = $1 AND alert_level < $2`,
			params.SessionID, rank,
		)
		if err != nil {
			return SyncOutcome{}, fmt.Errorf("escalate lead score: %w", err)
		}
		if tag.RowsAffected() == 1 {
			alert, inserted, err := insertAlert(ctx, tx, record, eval.VIP.AlertType)
			if err != nil {
				return SyncOutcome{}, err
			}
			if inserted {
				outcome.Alert = &alert
			}
			outcome.Record.HighestAlert = eval.VIP.AlertType
		}
	}

	if eval.VIP.AlertType == scoring.AlertUltraHighIntent {
		tag, err := tx.Exec(ctx,
			`UPDATE lead_scores SET admin_notified = true, updated_at = now()
			 WHERE session_id = $1 AND admin_notified = false`,
			params.SessionID,
		)
		if err != nil {
			return SyncOutcome{}, fmt.Errorf("claim admin notification: %w", err)
		}
		if tag.RowsAffected() == 1 {
			outboxID, err := outbox.Add(ctx, tx, outbox.Message{
				Kind:     outbox.KindAdminAlert,
				Template: outbox.TemplateVIPUltraHigh,
				Payload:  newAdminAlertPayload(outcome.Record, outcome.Alert),
				RunAt:    now,
			})
			if err != nil {
				return SyncOutcome{}, err
			}
			outcome.Notified = true
			outcome.OutboxID = outboxID
			outcome.Record.AdminNotified = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return SyncOutcome{}, fmt.Errorf("commit sync: %w", err)
	}
	return outcome, nil
}

func (r *Repository) MarkOrlaEngaged(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lead_scores SET orla_engaged = true, updated_at = now()
		 WHERE session_id = $1 AND orla_engaged = false`,
		sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("mark orla engaged: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM lead_scores WHERE session_id = $1)`, sessionID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check lead score: %w", err)
	}
	if !exists {
		return false, apperr.NotFound(leadScoreNotFoundMsg)
	}
	return false, nil
}

func (r *Repository) GetBySession(ctx context.Context, sessionID string) (LeadScoreRecord, error) {
	rec, _, err := scanLeadScore(r.pool.QueryRow(ctx,
		`SELECT `+leadScoreColumns+` FROM lead_scores WHERE session_id = $1`, sessionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadScoreRecord{}, apperr.NotFound(leadScoreNotFoundMsg)
	}
	if err != nil {
		return LeadScoreRecord{}, fmt.Errorf("get lead score: %w", err)
	}
	return rec, nil
}

func (r *Repository) ListLeadScores(ctx context.Context, filter LeadScoreFilter) ([]LeadScoreRecord, int, error) {
	where, args := buildLeadScoreWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lead_scores`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lead scores: %w", err)
	}

	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM lead_scores%s ORDER BY score DESC, last_activity_at DESC LIMIT $%d OFFSET $%d`,
		leadScoreColumns, where, len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list lead scores: %w", err)
	}
	defer rows.Close()

	items := make([]LeadScoreRecord, 0)
	for rows.Next() {
		rec, _, err := scanLeadScore(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead score: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}

func (r *Repository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM lead_scores WHERE is_vip = false AND last_activity_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete inactive lead scores: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildLeadScoreWhere(filter LeadScoreFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Tier != nil {
		args = append(args, string(*filter.Tier))
		clauses = append(clauses, fmt.Sprintf("tier = $%d", len(args)))
	}
	if filter.VIPOnly {
		clauses = append(clauses, "is_vip = true")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanLeadScore(row pgx.Row) (LeadScoreRecord, int, error) {
	var rec LeadScoreRecord
	var tier string
	var breakdown, snap []byte
	var level int16
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.Score.Total, &tier, &breakdown, &rec.Score.Version, &snap,
		&rec.Email, &rec.IsVIP, &level, &rec.VIPDetectedAt, &rec.AdminNotified, &rec.OrlaEngaged,
		&rec.LastActivityAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return LeadScoreRecord{}, 0, err
	}
	rec.Score.Tier = scoring.Tier(tier)
	rec.HighestAlert = scoring.AlertTypeForRank(int(level))
	if err := decodeBreakdown(breakdown, &rec.Score.Breakdown); err != nil {
		return LeadScoreRecord{}, 0, err
	}
	if err := decodeSnapshot(snap, &rec.Signals); err != nil {
		return LeadScoreRecord{}, 0, err
	}
	rec.Signals.SessionID = rec.SessionID
	return rec, int(level), nil
}

func decodeBreakdown(raw []byte, dst *map[string]int) error {
	*dst = map[string]int{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode breakdown: %w", err)
	}
	return nil
}

func decodeSnapshot(raw []byte, dst *signals.Snapshot) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode signals: %w", err)
	}
	*dst = dst.Normalize()
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func newAdminAlertPayload(rec LeadScoreRecord, alert *VIPAlert) AdminAlertPayload {
	payload := AdminAlertPayload{
		SessionID: rec.SessionID,
		Email:     rec.Email,
		Score:     rec.Score.Total,
		Tier:      rec.Score.Tier,
		Breakdown: rec.Score.Breakdown,
		AlertType: scoring.AlertUltraHighIntent,
	}
	if alert != nil {
		id := alert.ID
		payload.AlertID = &id
	}
	return payload
}
