package transport

import (
	"maps"
	"slices"

	"concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/leadscores/signals"
)

func (d SnapshotDTO) ToSnapshot(sessionID string) signals.Snapshot {
	return signals.Snapshot{
		Version:            d.Version,
		SessionID:          sessionID,
		PagesVisited:       slices.Clone(d.PagesVisited),
		TimeOnSiteSeconds:  d.TimeOnSiteSeconds,
		ScrollDepthPercent: d.ScrollDepthPercent,
		ReturnVisits:       d.ReturnVisits,
		ServicesViewed:     d.ServicesViewed,
		FormInteractions:   d.FormInteractions,
		UTMSource:          d.UTMSource,
		UTMMedium:          d.UTMMedium,
		TrialStarted:       d.TrialStarted,
		LastActivityAt:     d.LastActivityAt,
	}
}

func FromSnapshot(s signals.Snapshot) SnapshotDTO {
	pages := slices.Clone(s.PagesVisited)
	if pages == nil {
		pages = []string{}
	}
	return SnapshotDTO{
		Version:            s.Version,
		PagesVisited:       pages,
		TimeOnSiteSeconds:  s.TimeOnSiteSeconds,
		ScrollDepthPercent: s.ScrollDepthPercent,
		ReturnVisits:       s.ReturnVisits,
		ServicesViewed:     s.ServicesViewed,
		FormInteractions:   s.FormInteractions,
		UTMSource:          s.UTMSource,
		UTMMedium:          s.UTMMedium,
		TrialStarted:       s.TrialStarted,
		LastActivityAt:     s.LastActivityAt,
	}
}

func (e SignalEventDTO) ToEvent() signals.Event {
	return signals.Event{
		Type:   signals.EventType(e.Type),
		Path:   e.Path,
		Value:  e.Value,
		Source: e.Source,
		Medium: e.Medium,
	}
}

func ToLeadScoreResponse(rec repository.LeadScoreRecord) LeadScoreResponse {
	return LeadScoreResponse{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		Score:          rec.Score.Total,
		Tier:           string(rec.Score.Tier),
		Breakdown:      nonNilBreakdown(rec.Score.Breakdown),
		ScoreVersion:   rec.Score.Version,
		Signals:        FromSnapshot(rec.Signals),
		Email:          rec.Email,
		IsVIP:          rec.IsVIP,
		AlertType:      string(rec.HighestAlert),
		VIPDetectedAt:  rec.VIPDetectedAt,
		AdminNotified:  rec.AdminNotified,
		OrlaEngaged:    rec.OrlaEngaged,
		LastActivityAt: rec.LastActivityAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func ToVIPAlertResponse(a repository.VIPAlert) VIPAlertResponse {
	return VIPAlertResponse{
		ID:         a.ID,
		SessionID:  a.SessionID,
		Score:      a.Score,
		Tier:       string(a.Tier),
		Signals:    FromSnapshot(a.Signals),
		Breakdown:  nonNilBreakdown(a.Breakdown),
		AlertType:  string(a.AlertType),
		Status:     string(a.Status),
		Email:      a.Email,
		Notes:      a.Notes,
		ReviewedAt: a.ReviewedAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func nonNilBreakdown(b map[string]int) map[string]int {
	if b == nil {
		return map[string]int{}
	}
	return maps.Clone(b)
}
