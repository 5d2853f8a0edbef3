package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const alertNotFoundMsg = "vip alert not found"

const alertColumns = `id, session_id, score, tier, signals, breakdown, alert_type, status,
	email, notes, reviewed_at, created_at, updated_at`

// insertAlert records an escalation. A concurrent insert of the same
// (session, type) pair is absorbed by the unique constraint.
func insertAlert(ctx context.Context, tx pgx.Tx, rec LeadScoreRecord, alertType scoring.AlertType) (VIPAlert, bool, error) {
	snap, err := json.Marshal(rec.Signals)
	if err != nil {
		return VIPAlert{}, false, fmt.Errorf("marshal alert signals: %w", err)
	}
	breakdown, err := json.Marshal(rec.Score.Breakdown)
	if err != nil {
		return VIPAlert{}, false, fmt.Errorf("marshal alert breakdown: %w", err)
	}

	alert, err := scanAlert(tx.QueryRow(ctx, `
		INSERT INTO vip_alerts (session_id, score, tier, signals, breakdown, alert_type, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, alert_type) DO NOTHING
		RETURNING `+alertColumns,
		rec.SessionID, rec.Score.Total, string(rec.Score.Tier), snap, breakdown, string(alertType), rec.Email,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return VIPAlert{}, false, nil
	}
	if err != nil {
		return VIPAlert{}, false, fmt.Errorf("insert vip alert: %w", err)
	}
	return alert, true, nil
}

func (r *Repository) ListAlerts(ctx context.Context, filter AlertFilter) ([]VIPAlert, int, error) {
	where, args := buildAlertWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vip_alerts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vip alerts: %w", err)
	}

	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM vip_alerts%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list vip alerts: %w", err)
	}
	defer rows.Close()

	items := make([]VIPAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan vip alert: %w", err)
		}
		items = append(items, alert)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return items, total, nil
}

func (r *Repository) GetAlert(ctx context.Context, id uuid.UUID) (VIPAlert, error) {
	alert, err := scanAlert(r.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM vip_alerts WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return VIPAlert{}, apperr.NotFound(alertNotFoundMsg)
	}
	if err != nil {
		return VIPAlert{}, fmt.Errorf("get vip alert: %w", err)
	}
	return alert, nil
}

func (r *Repository) UpdateAlertStatus(ctx context.Context, params UpdateAlertStatusParams) (VIPAlert, bool, error) {
	alert, err := scanAlert(r.pool.QueryRow(ctx, `
		UPDATE vip_alerts SET
			status = $3,
			notes = COALESCE($4, notes),
			reviewed_at = $5,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+alertColumns,
		params.ID, string(params.From), string(params.To), params.Notes, params.ReviewedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return VIPAlert{}, false, nil
	}
	if err != nil {
		return VIPAlert{}, false, fmt.Errorf("update vip alert status: %w", err)
	}
	return alert, true, nil
}

func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM lead_scores WHERE is_vip = true),
			(SELECT COUNT(*) FROM vip_alerts WHERE status = 'new'),
			(SELECT COUNT(*) FROM vip_alerts WHERE status = 'converted'),
			(SELECT COALESCE(AVG(score), 0)::float8 FROM lead_scores WHERE is_vip = true)
	`).Scan(&stats.TotalVIPs, &stats.NewAlerts, &stats.Converted, &stats.AvgScore)
	if err != nil {
		return Stats{}, fmt.Errorf("get vip stats: %w", err)
	}
	return stats, nil
}

func buildAlertWhere(filter AlertFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AlertType != nil {
		args = append(args, string(*filter.AlertType))
		clauses = append(clauses, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanAlert(row pgx.Row) (VIPAlert, error) {
	var alert VIPAlert
	var tier, alertType, status string
	var snap, breakdown []byte
	err := row.Scan(
		&alert.ID, &alert.SessionID, &alert.Score, &tier, &snap, &breakdown, &alertType, &status,
		&alert.Email, &alert.Notes, &alert.ReviewedAt, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return VIPAlert{}, err
	}
	alert.Tier = scoring.Tier(tier)
	alert.AlertType = scoring.AlertType(alertType)
	alert.Status = alerts.Status(status)
	if err := decodeSnapshot(snap, &alert.Signals); err != nil {
		return VIPAlert{}, err
	}
	if err := decodeBreakdown(breakdown, &alert.Breakdown); err != nil {
		return VIPAlert{}, err
	}
	return alert, nil
}
