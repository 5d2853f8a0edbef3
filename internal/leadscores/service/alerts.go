package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"concierge_backend/internal/events"
	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	exportPageSize = 500
	maxNotesLength = 4000
)

func (s *Service) ListAlerts(ctx context.Context, req transport.ListAlertsRequest) (transport.VIPAlertListResponse, error) {
	filter, err := toAlertFilter(req)
	if err != nil {
		return transport.VIPAlertListResponse{}, err
	}

	items, total, err := s.repo.ListAlerts(ctx, filter)
	if err != nil {
		return transport.VIPAlertListResponse{}, err
	}
	resp := transport.VIPAlertListResponse{Items: make([]transport.VIPAlertResponse, 0, len(items)), Total: total}
	for _, a := range items {
		resp.Items = append(resp.Items, transport.ToVIPAlertResponse(a))
	}
	return resp, nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (transport.VIPAlertResponse, error) {
	alert, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return transport.VIPAlertResponse{}, err
	}
	return transport.ToVIPAlertResponse(alert), nil
}

func (s *Service) GetStats(ctx context.Context) (transport.VIPStatsResponse, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return transport.VIPStatsResponse{}, err
	}
	return transport.VIPStatsResponse{
		TotalVIPs: stats.TotalVIPs,
		NewAlerts: stats.NewAlerts,
		Converted: stats.Converted,
		AvgScore:  stats.AvgScore,
	}, nil
}

// UpdateAlertStatus moves an alert through the review workflow. Forbidden
// transitions and lost races both return a conflict and change nothing.
func (s *Service) UpdateAlertStatus(ctx context.Context, id uuid.UUID, req transport.UpdateAlertStatusRequest) (transport.UpdateAlertStatusResponse, error) {
	to, ok := alerts.ParseStatus(req.Status)
	if !ok {
		return transport.UpdateAlertStatusResponse{}, apperr.Validation("invalid alert status")
	}

	current, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return transport.UpdateAlertStatusResponse{}, err
	}
	if !alerts.CanTransition(current.Status, to) {
		return transport.UpdateAlertStatusResponse{}, apperr.Conflict(
			fmt.Sprintf("cannot move alert from %s to %s", current.Status, to),
		).WithDetails(map[string]string{"status": string(current.Status)})
	}

	updated, ok, err := s.repo.UpdateAlertStatus(ctx, repository.UpdateAlertStatusParams{
		ID:         id,
		From:       current.Status,
		To:         to,
		Notes:      sanitize.TextPtr(req.Notes, maxNotesLength),
		ReviewedAt: s.now().UTC(),
	})
	if err != nil {
		return transport.UpdateAlertStatusResponse{}, err
	}
	if !ok {
		return transport.UpdateAlertStatusResponse{}, apperr.Conflict("alert was updated by someone else")
	}

	if current.Status != to {
		s.bus.Publish(ctx, events.VIPAlertStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			AlertID:   updated.ID,
			SessionID: updated.SessionID,
			OldStatus: string(current.Status),
			NewStatus: string(to),
		})
	}

	return transport.UpdateAlertStatusResponse{Updated: true, Alert: transport.ToVIPAlertResponse(updated)}, nil
}

// ExportAlertsCSV writes every alert matching req as CSV, ignoring paging.
func (s *Service) ExportAlertsCSV(ctx context.Context, w io.Writer, req transport.ListAlertsRequest) error {
	filter, err := toAlertFilter(req)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "session_id", "alert_type", "status", "score", "tier", "email", "notes", "created_at", "reviewed_at",
	}); err != nil {
		return err
	}

	filter.Limit = exportPageSize
	filter.Offset = 0
	for {
		items, _, err := s.repo.ListAlerts(ctx, filter)
		if err != nil {
			return err
		}
		for _, a := range items {
			if err := cw.Write(alertCSVRow(a)); err != nil {
				return err
			}
		}
		if len(items) < exportPageSize {
			break
		}
		filter.Offset += len(items)
	}

	cw.Flush()
	return cw.Error()
}

func alertCSVRow(a repository.VIPAlert) []string {
	return []string{
		a.ID.String(),
		a.SessionID,
		string(a.AlertType),
		string(a.Status),
		strconv.Itoa(a.Score),
		string(a.Tier),
		deref(a.Email),
		deref(a.Notes),
		a.CreatedAt.UTC().Format(time.RFC3339),
		formatOptionalTime(a.ReviewedAt),
	}
}

func toAlertFilter(req transport.ListAlertsRequest) (repository.AlertFilter, error) {
	filter := repository.AlertFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status, ok := alerts.ParseStatus(req.Status)
		if !ok {
			return repository.AlertFilter{}, apperr.Validation("invalid alert status")
		}
		filter.Status = &status
	}
	if req.AlertType != "" {
		alertType := scoring.AlertType(req.AlertType)
		if !alertType.IsValid() {
			return repository.AlertFilter{}, apperr.Validation("invalid alert type")
		}
		filter.AlertType = &alertType
	}
	return filter, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
