package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"concierge_backend/internal/email"
	"concierge_backend/internal/events"
	notificationoutbox "concierge_backend/internal/notification/outbox"
	"concierge_backend/internal/whatsapp"
	"concierge_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeOutbox struct {
	mu      sync.Mutex
	records map[uuid.UUID]notificationoutbox.Record
	errors  map[uuid.UUID]string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{
		records: make(map[uuid.UUID]notificationoutbox.Record),
		errors:  make(map[uuid.UUID]string),
	}
}

func (f *fakeOutbox) add(t *testing.T, kind, template string, payload any) uuid.UUID {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id := uuid.New()
	f.records[id] = notificationoutbox.Record{ID: id, Kind: kind, Template: template, Payload: raw, Status: notificationoutbox.StatusPending}
	return id
}

func (f *fakeOutbox) status(id uuid.UUID) notificationoutbox.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id].Status
}

func (f *fakeOutbox) ClaimForDelivery(_ context.Context, id uuid.UUID) (notificationoutbox.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || (rec.Status != notificationoutbox.StatusPending && rec.Status != notificationoutbox.StatusEnqueued) {
		return notificationoutbox.Record{}, false, nil
	}
	rec.Status = notificationoutbox.StatusProcessing
	rec.Attempts++
	f.records[id] = rec
	return rec, true, nil
}

func (f *fakeOutbox) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	rec.Status = notificationoutbox.StatusSucceeded
	f.records[id] = rec
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	rec.Status = notificationoutbox.StatusFailed
	f.records[id] = rec
	f.errors[id] = lastError
	return nil
}

type fakeSender struct {
	email.NoopSender
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSender) SendVIPAlertEmail(_ context.Context, to string, _ email.VIPAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	return s.err
}

type fakeWhatsApp struct {
	calls int
	last  whatsapp.VIPAlert
}

func (w *fakeWhatsApp) SendVIPAlert(_ context.Context, _ string, alert whatsapp.VIPAlert) error {
	w.calls++
	w.last = alert
	return nil
}

type fakeWebhook struct {
	events []string
}

func (w *fakeWebhook) Send(_ context.Context, event string, _ any) error {
	w.events = append(w.events, event)
	return nil
}

type alertConfig struct {
	emails []string
	phone  string
}

func (c alertConfig) GetAdminAlertEmails() []string { return c.emails }
func (c alertConfig) GetAdminAlertPhone() string    { return c.phone }
func (c alertConfig) GetAppBaseURL() string         { return "https://admin.example.com/" }

func ultraPayload() adminAlertPayload {
	alertID := uuid.New()
	mail := "lead@example.com"
	return adminAlertPayload{
		AlertID:   &alertID,
		SessionID: "session-1",
		Email:     &mail,
		Score:     95,
		Tier:      "qualified",
		Breakdown: map[string]int{"trial_started": 30},
		AlertType: "ultra_high_intent",
	}
}

func due(id uuid.UUID) events.NotificationOutboxDue {
	return events.NotificationOutboxDue{BaseEvent: events.NewBaseEvent(), OutboxID: id}
}

func TestOutboxDueDeliversToEveryChannelOnce(t *testing.T) {
	ob := newFakeOutbox()
	sender := &fakeSender{}
	wa := &fakeWhatsApp{}
	hook := &fakeWebhook{}

	m := New(ob, sender, alertConfig{emails: []string{"a@example.com", "b@example.com"}, phone: "+31612345678"}, logger.Discard())
	m.SetWhatsAppSender(wa)
	m.SetWebhookSender(hook)

	id := ob.add(t, notificationoutbox.KindAdminAlert, notificationoutbox.TemplateVIPUltraHigh, ultraPayload())
	ctx := context.Background()

	if err := m.Handle(ctx, due(id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Handle(ctx, due(id)); err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}

	if len(sender.sent) != 2 || wa.calls != 1 || len(hook.events) != 1 {
		t.Fatalf("expected one delivery per channel, got email=%d whatsapp=%d webhook=%d", len(sender.sent), wa.calls, len(hook.events))
	}
	if hook.events[0] != "vip_alert.ultra_high_intent" {
		t.Fatalf("unexpected webhook event %q", hook.events[0])
	}
	if wa.last.Link == "" || wa.last.Email != "lead@example.com" {
		t.Fatalf("unexpected whatsapp alert %+v", wa.last)
	}
	if ob.status(id) != notificationoutbox.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", ob.status(id))
	}
}

func TestOutboxDueMarksFailedButTriesAllChannels(t *testing.T) {
	ob := newFakeOutbox()
	sender := &fakeSender{err: errors.New("smtp down")}
	hook := &fakeWebhook{}

	m := New(ob, sender, alertConfig{emails: []string{"a@example.com"}}, logger.Discard())
	m.SetWebhookSender(hook)

	id := ob.add(t, notificationoutbox.KindAdminAlert, notificationoutbox.TemplateVIPUltraHigh, ultraPayload())
	if err := m.Handle(context.Background(), due(id)); err != nil {
		t.Fatalf("delivery failures are not handler errors, got %v", err)
	}
	if len(hook.events) != 1 {
		t.Fatal("expected webhook attempted despite email failure")
	}
	if ob.status(id) != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed, got %s", ob.status(id))
	}
	if ob.errors[id] == "" {
		t.Fatal("expected last error recorded")
	}

	if err := m.Handle(context.Background(), due(id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatal("expected no automatic re-delivery of a failed row")
	}
}

func TestOutboxDueRejectsBadRecords(t *testing.T) {
	ob := newFakeOutbox()
	m := New(ob, &fakeSender{}, alertConfig{emails: []string{"a@example.com"}}, logger.Discard())

	unsupported := ob.add(t, "sms", "other", map[string]string{})
	if err := m.Handle(context.Background(), due(unsupported)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ob.status(unsupported) != notificationoutbox.StatusFailed {
		t.Fatal("expected unsupported record to fail")
	}

	garbage := uuid.New()
	ob.records[garbage] = notificationoutbox.Record{
		ID: garbage, Kind: notificationoutbox.KindAdminAlert, Template: notificationoutbox.TemplateVIPUltraHigh,
		Payload: json.RawMessage(`"not an object"`), Status: notificationoutbox.StatusPending,
	}
	if err := m.Handle(context.Background(), due(garbage)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ob.status(garbage) != notificationoutbox.StatusFailed {
		t.Fatal("expected invalid payload to fail")
	}
}

func TestOutboxDueWithoutChannelsFails(t *testing.T) {
	ob := newFakeOutbox()
	m := New(ob, nil, alertConfig{}, logger.Discard())

	id := ob.add(t, notificationoutbox.KindAdminAlert, notificationoutbox.TemplateVIPUltraHigh, ultraPayload())
	if err := m.Handle(context.Background(), due(id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ob.status(id) != notificationoutbox.StatusFailed {
		t.Fatalf("expected failed without channels, got %s", ob.status(id))
	}
}

func TestDashboardURL(t *testing.T) {
	m := New(nil, nil, alertConfig{}, logger.Discard())
	id := uuid.MustParse("7f8e2b6a-0a43-4f7c-9f31-4e3c1d2b9a10")
	if got := m.dashboardURL(&id); got != "https://admin.example.com/admin/vip-alerts/"+id.String() {
		t.Fatalf("unexpected url %q", got)
	}
	if got := m.dashboardURL(nil); got != "https://admin.example.com/admin/vip-alerts" {
		t.Fatalf("unexpected url %q", got)
	}
}
