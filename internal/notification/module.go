// Package notification delivers admin alerts in response to domain events.
// Domain modules only write outbox rows and publish events; this module owns
// the channels (email, WhatsApp, webhook) and the realtime dashboard stream.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"concierge_backend/internal/email"
	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	notificationoutbox "concierge_backend/internal/notification/outbox"
	"concierge_backend/internal/notification/sse"
	"concierge_backend/internal/webhook"
	"concierge_backend/internal/whatsapp"
	"concierge_backend/platform/config"
	"concierge_backend/platform/httpkit"
	"concierge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const invalidOutboxPayloadPrefix = "invalid payload: "

// OutboxStore is the slice of the outbox repository delivery needs.
type OutboxStore interface {
	ClaimForDelivery(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, bool, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// WhatsAppSender sends the alert summary to a phone.
type WhatsAppSender interface {
	SendVIPAlert(ctx context.Context, phoneNumber string, alert whatsapp.VIPAlert) error
}

// WebhookSender posts a JSON event to the operator's endpoint.
type WebhookSender interface {
	Send(ctx context.Context, event string, payload any) error
}

// adminAlertPayload mirrors the JSON written by the lead score repository.
type adminAlertPayload struct {
	AlertID   *uuid.UUID     `json:"alertId,omitempty"`
	SessionID string         `json:"sessionId"`
	Email     *string        `json:"email,omitempty"`
	Score     int            `json:"score"`
	Tier      string         `json:"tier"`
	Breakdown map[string]int `json:"breakdown"`
	AlertType string         `json:"alertType"`
}

// Module is the notification bounded context.
type Module struct {
	outbox   OutboxStore
	sender   email.Sender
	whatsapp WhatsAppSender
	webhook  WebhookSender
	cfg      config.AdminAlertConfig
	log      *logger.Logger
	sse      *sse.Service
}

// New creates a new notification module. WhatsApp and webhook channels are
// attached with their setters once configured.
func New(outbox OutboxStore, sender email.Sender, cfg config.AdminAlertConfig, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{
		outbox: outbox,
		sender: sender,
		cfg:    cfg,
		log:    log,
		sse:    sse.New(log),
	}
}

// SetWhatsAppSender enables the WhatsApp channel.
func (m *Module) SetWhatsAppSender(s WhatsAppSender) {
	m.whatsapp = s
}

// SetWebhookSender enables the webhook channel.
func (m *Module) SetWebhookSender(s WebhookSender) {
	m.webhook = s
}

// AttachChannels enables whichever optional clients are configured. Disabled
// clients are nil pointers and must not end up in the interface fields.
func (m *Module) AttachChannels(wa *whatsapp.Client, hook *webhook.Client) {
	if wa.Enabled() {
		m.SetWhatsAppSender(wa)
	}
	if hook.Enabled() {
		m.SetWebhookSender(hook)
	}
}

// SSE returns the realtime stream for admin dashboards.
func (m *Module) SSE() *sse.Service {
	return m.sse
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the admin event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Admin.GET("/vip-alerts/stream", m.sse.Handler(func(c *gin.Context) (uuid.UUID, bool) {
		id, ok := httpkit.GetIdentity(c)
		return id.UserID, ok
	}))
}

// RegisterHandlers subscribes to the events this module reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.VIPAlertCreated{}.EventName(), m)
	bus.Subscribe(events.VIPAlertStatusChanged{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.VIPAlertCreated:
		m.sse.Broadcast(sse.Event{
			Type:      sse.EventVIPAlertCreated,
			AlertID:   e.AlertID,
			SessionID: e.SessionID,
			Data:      e,
		})
		return nil
	case events.VIPAlertStatusChanged:
		m.sse.Broadcast(sse.Event{
			Type:      sse.EventVIPAlertStatusChanged,
			AlertID:   e.AlertID,
			SessionID: e.SessionID,
			Data:      e,
		})
		return nil
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		m.log.Debug("notification outbox not configured; skipping outbox due event", "outboxId", e.OutboxID)
		return nil
	}

	rec, claimed, err := m.outbox.ClaimForDelivery(ctx, e.OutboxID)
	if err != nil {
		m.log.Error("failed to claim outbox record", "outboxId", e.OutboxID, "error", err)
		return err
	}
	if !claimed {
		m.log.Debug("outbox record already claimed or delivered; skipping", "outboxId", e.OutboxID)
		return nil
	}

	if rec.Kind != notificationoutbox.KindAdminAlert || rec.Template != notificationoutbox.TemplateVIPUltraHigh {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var payload adminAlertPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		m.log.Warn("invalid admin alert payload", "outboxId", rec.ID.String(), "error", err)
		return nil
	}

	if err := m.deliverAdminAlert(ctx, payload); err != nil {
		// The admin_notified flag stays set; failed rows are visible for manual follow-up.
		if markErr := m.outbox.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			m.log.Error("failed to mark outbox record failed", "outboxId", rec.ID.String(), "error", markErr)
		}
		m.log.Warn("admin alert delivery failed",
			"outboxId", rec.ID.String(),
			"sessionId", payload.SessionID,
			"error", err,
		)
		return nil
	}

	if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		m.log.Error("failed to mark outbox record succeeded", "outboxId", rec.ID.String(), "error", err)
	}
	m.log.Info("admin alert delivered", "outboxId", rec.ID.String(), "sessionId", payload.SessionID, "score", payload.Score)
	return nil
}

// deliverAdminAlert fans the alert out to every configured channel. A channel
// failure does not stop the others; all failures are joined.
func (m *Module) deliverAdminAlert(ctx context.Context, p adminAlertPayload) error {
	var errs []error
	attempted := 0

	if recipients := m.cfg.GetAdminAlertEmails(); len(recipients) > 0 {
		alert := email.VIPAlert{
			SessionID:    p.SessionID,
			Email:        deref(p.Email),
			Score:        p.Score,
			Tier:         p.Tier,
			AlertType:    p.AlertType,
			Breakdown:    p.Breakdown,
			DashboardURL: m.dashboardURL(p.AlertID),
		}
		for _, to := range recipients {
			attempted++
			if err := m.sender.SendVIPAlertEmail(ctx, to, alert); err != nil {
				m.log.Warn("admin alert email failed", "to", to, "error", err)
				errs = append(errs, fmt.Errorf("email %s: %w", to, err))
			}
		}
	}

	if phoneNumber := strings.TrimSpace(m.cfg.GetAdminAlertPhone()); phoneNumber != "" && m.whatsapp != nil {
		attempted++
		err := m.whatsapp.SendVIPAlert(ctx, phoneNumber, whatsapp.VIPAlert{
			SessionID: p.SessionID,
			Email:     deref(p.Email),
			Score:     p.Score,
			Tier:      p.Tier,
			AlertType: p.AlertType,
			Breakdown: p.Breakdown,
			Link:      m.dashboardURL(p.AlertID),
		})
		if err != nil {
			m.log.Warn("admin alert whatsapp failed", "error", err)
			errs = append(errs, fmt.Errorf("whatsapp: %w", err))
		}
	}

	if m.webhook != nil {
		attempted++
		if err := m.webhook.Send(ctx, "vip_alert."+p.AlertType, p); err != nil {
			m.log.Warn("admin alert webhook failed", "error", err)
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}

	if attempted == 0 {
		return errors.New("no admin alert channels configured")
	}
	return errors.Join(errs...)
}

func (m *Module) dashboardURL(alertID *uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	if alertID == nil {
		return base + "/admin/vip-alerts"
	}
	return base + "/admin/vip-alerts/" + alertID.String()
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
