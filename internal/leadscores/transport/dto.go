package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs

// SnapshotDTO is the wire form of a signal snapshot.
type SnapshotDTO struct {
	Version            int        `json:"version,omitempty" validate:"omitempty,eq=1"`
	PagesVisited       []string   `json:"pagesVisited" validate:"max=500,dive,max=2048"`
	TimeOnSiteSeconds  int        `json:"timeOnSiteSeconds" validate:"min=0,max=31536000"`
	ScrollDepthPercent int        `json:"scrollDepthPercent" validate:"min=0"`
	ReturnVisits       int        `json:"returnVisits" validate:"min=0,max=100000"`
	ServicesViewed     int        `json:"servicesViewed" validate:"min=0,max=100000"`
	FormInteractions   int        `json:"formInteractions" validate:"min=0,max=100000"`
	UTMSource          string     `json:"utmSource,omitempty" validate:"max=200"`
	UTMMedium          string     `json:"utmMedium,omitempty" validate:"max=200"`
	TrialStarted       bool       `json:"trialStarted"`
	LastActivityAt     *time.Time `json:"lastActivityAt,omitempty"`
}

type SyncRequest struct {
	SessionID string      `json:"sessionId" validate:"required,min=8,max=128"`
	Snapshot  SnapshotDTO `json:"snapshot"`
	Email     string      `json:"email,omitempty" validate:"omitempty,email,max=320"`
}

type SignalEventDTO struct {
	Type   string `json:"type" validate:"required,signalevent"`
	Path   string `json:"path,omitempty" validate:"max=2048"`
	Value  int    `json:"value,omitempty" validate:"min=-86400,max=86400"`
	Source string `json:"source,omitempty" validate:"max=200"`
	Medium string `json:"medium,omitempty" validate:"max=200"`
}

type EventsRequest struct {
	SessionID string           `json:"sessionId" validate:"required,min=8,max=128"`
	Email     string           `json:"email,omitempty" validate:"omitempty,email,max=320"`
	Events    []SignalEventDTO `json:"events" validate:"required,min=1,max=100,dive"`
}

type ListAlertsRequest struct {
	Status    string `form:"status" validate:"omitempty,alertstatus"`
	AlertType string `form:"alertType" validate:"omitempty,oneof=qualified_lead high_intent ultra_high_intent"`
	Limit     int    `form:"limit" validate:"min=0,max=500"`
	Offset    int    `form:"offset" validate:"min=0"`
}

type UpdateAlertStatusRequest struct {
	Status string  `json:"status" validate:"required,alertstatus"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type ListLeadScoresRequest struct {
	Tier    string `form:"tier" validate:"omitempty,oneof=cold warm hot qualified"`
	VIPOnly bool   `form:"vipOnly"`
	Limit   int    `form:"limit" validate:"min=0,max=500"`
	Offset  int    `form:"offset" validate:"min=0"`
}

// Response DTOs

type LeadScoreResponse struct {
	ID             uuid.UUID      `json:"id"`
	SessionID      string         `json:"sessionId"`
	Score          int            `json:"score"`
	Tier           string         `json:"tier"`
	Breakdown      map[string]int `json:"breakdown"`
	ScoreVersion   string         `json:"scoreVersion"`
	Signals        SnapshotDTO    `json:"signals"`
	Email          *string        `json:"email,omitempty"`
	IsVIP          bool           `json:"isVip"`
	AlertType      string         `json:"alertType,omitempty"`
	VIPDetectedAt  *time.Time     `json:"vipDetectedAt,omitempty"`
	AdminNotified  bool           `json:"adminNotified"`
	OrlaEngaged    bool           `json:"orlaEngaged"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type LeadScoreListResponse struct {
	Items []LeadScoreResponse `json:"items"`
	Total int                 `json:"total"`
}

type VIPAlertResponse struct {
	ID         uuid.UUID      `json:"id"`
	SessionID  string         `json:"sessionId"`
	Score      int            `json:"score"`
	Tier       string         `json:"tier"`
	Signals    SnapshotDTO    `json:"signals"`
	Breakdown  map[string]int `json:"breakdown"`
	AlertType  string         `json:"alertType"`
	Status     string         `json:"status"`
	Email      *string        `json:"email,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
	ReviewedAt *time.Time     `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type VIPAlertListResponse struct {
	Items []VIPAlertResponse `json:"items"`
	Total int                `json:"total"`
}

type UpdateAlertStatusResponse struct {
	Updated bool             `json:"updated"`
	Alert   VIPAlertResponse `json:"alert"`
}

type VIPStatsResponse struct {
	TotalVIPs int     `json:"totalVIPs"`
	NewAlerts int     `json:"newAlerts"`
	Converted int     `json:"converted"`
	AvgScore  float64 `json:"avgScore"`
}

type OrlaEngagedResponse struct {
	Updated bool `json:"updated"`
}
