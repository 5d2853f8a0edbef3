package repository

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/signals"
)

func evaluate(stored *signals.Snapshot, incoming signals.Snapshot) Evaluation {
	merged := incoming.Normalize()
	if stored != nil {
		merged = signals.Merge(*stored, incoming)
	}
	score := scoring.Compute(merged)
	return Evaluation{Snapshot: merged, Score: score, VIP: scoring.ClassifyVIP(score)}
}

var ultraSnapshot = signals.Snapshot{
	PagesVisited:       []string{"/pricing"},
	TimeOnSiteSeconds:  650,
	ScrollDepthPercent: 95,
	ReturnVisits:       3,
	UTMSource:          "linkedin",
}

func TestBuildAlertWhere(t *testing.T) {
	status := alerts.StatusNew
	alertType := scoring.AlertHighIntent

	where, args := buildAlertWhere(AlertFilter{})
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty filter, got %q %v", where, args)
	}

	where, args = buildAlertWhere(AlertFilter{Status: &status, AlertType: &alertType})
	if where != " WHERE status = $1 AND alert_type = $2" {
		t.Fatalf("unexpected where clause %q", where)
	}
	if !reflect.DeepEqual(args, []any{"new", "high_intent"}) {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildLeadScoreWhere(t *testing.T) {
	tier := scoring.TierHot
	where, args := buildLeadScoreWhere(LeadScoreFilter{Tier: &tier, VIPOnly: true})
	if where != " WHERE tier = $1 AND is_vip = true" {
		t.Fatalf("unexpected where clause %q", where)
	}
	if !reflect.DeepEqual(args, []any{"hot"}) {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestClampLimit(t *testing.T) {
	if clampLimit(0) != defaultListLimit || clampLimit(10_000) != maxListLimit || clampLimit(7) != 7 {
		t.Fatal("unexpected limit clamping")
	}
}

func TestMemorySyncCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	first, err := repo.Sync(ctx, SyncParams{
		SessionID: "s-1",
		Snapshot:  signals.Snapshot{PagesVisited: []string{"/pricing"}, TimeOnSiteSeconds: 300},
	}, evaluate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Created || first.Record.Score.Total != 25 || first.Record.IsVIP {
		t.Fatalf("unexpected first outcome %+v", first)
	}

	email := "guest@example.com"
	second, err := repo.Sync(ctx, SyncParams{
		SessionID: "s-1",
		Snapshot:  signals.Snapshot{PagesVisited: []string{"/contact"}, TimeOnSiteSeconds: 100},
		Email:     &email,
	}, evaluate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created {
		t.Fatal("expected existing record")
	}
	if want := []string{"/contact", "/pricing"}; !reflect.DeepEqual(second.Record.Signals.PagesVisited, want) {
		t.Fatalf("expected merged pages %v, got %v", want, second.Record.Signals.PagesVisited)
	}
	if second.Record.Signals.TimeOnSiteSeconds != 300 {
		t.Fatalf("expected time not to regress, got %d", second.Record.Signals.TimeOnSiteSeconds)
	}
	if second.Record.Email == nil || *second.Record.Email != email {
		t.Fatalf("expected email stored, got %v", second.Record.Email)
	}

	empty := ""
	third, _ := repo.Sync(ctx, SyncParams{SessionID: "s-1", Email: &empty}, evaluate)
	if third.Record.Email == nil || *third.Record.Email != email {
		t.Fatal("expected empty email not to clear the stored one")
	}
}

func TestMemorySyncEscalatesOncePerSeverity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	qualified := signals.Snapshot{PagesVisited: []string{"/pricing", "/contact"}, TimeOnSiteSeconds: 650, ReturnVisits: 1, FormInteractions: 2}
	out, _ := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: qualified}, evaluate)
	if out.Alert == nil || out.Alert.AlertType != scoring.AlertQualifiedLead {
		t.Fatalf("expected qualified_lead alert, got %+v", out.Alert)
	}
	if out.Notified {
		t.Fatal("expected no admin notification below ultra")
	}

	again, _ := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: qualified}, evaluate)
	if again.Alert != nil {
		t.Fatal("expected no duplicate alert for the same severity")
	}

	ultra, _ := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: ultraSnapshot}, evaluate)
	if ultra.Alert == nil || ultra.Alert.AlertType != scoring.AlertUltraHighIntent {
		t.Fatalf("expected ultra alert, got %+v", ultra.Alert)
	}
	if !ultra.Notified || !ultra.Record.AdminNotified {
		t.Fatal("expected admin notification claimed")
	}

	_, total, _ := repo.ListAlerts(ctx, AlertFilter{})
	if total != 2 {
		t.Fatalf("expected 2 alerts, got %d", total)
	}
	if msgs := repo.OutboxMessages(); len(msgs) != 1 || msgs[0].Payload.Score != ultra.Record.Score.Total {
		t.Fatalf("unexpected outbox %+v", msgs)
	}
}

func TestMemorySyncConcurrentNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	notified := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: ultraSnapshot}, evaluate)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if out.Notified {
				mu.Lock()
				notified++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if notified != 1 {
		t.Fatalf("expected exactly one notification, got %d", notified)
	}
	ultra := scoring.AlertUltraHighIntent
	if _, total, _ := repo.ListAlerts(ctx, AlertFilter{AlertType: &ultra}); total != 1 {
		t.Fatalf("expected exactly one ultra alert, got %d", total)
	}
}

func TestMemorySyncFailureLeavesNoState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemory()

	if _, err := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: ultraSnapshot}, evaluate); err == nil {
		t.Fatal("expected cancelled sync to fail")
	}
	if _, err := repo.GetBySession(context.Background(), "s-1"); err == nil {
		t.Fatal("expected no record after failed sync")
	}
}

func TestMemoryConditionalAlertUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	out, _ := repo.Sync(ctx, SyncParams{SessionID: "s-1", Snapshot: ultraSnapshot}, evaluate)

	now := time.Now().UTC()
	notes := "called back"
	updated, ok, err := repo.UpdateAlertStatus(ctx, UpdateAlertStatusParams{
		ID: out.Alert.ID, From: alerts.StatusNew, To: alerts.StatusContacted, Notes: &notes, ReviewedAt: now,
	})
	if err != nil || !ok {
		t.Fatalf("expected update, ok=%v err=%v", ok, err)
	}
	if updated.Status != alerts.StatusContacted || updated.ReviewedAt == nil || *updated.Notes != notes {
		t.Fatalf("unexpected alert %+v", updated)
	}

	_, ok, _ = repo.UpdateAlertStatus(ctx, UpdateAlertStatusParams{
		ID: out.Alert.ID, From: alerts.StatusNew, To: alerts.StatusDismissed, ReviewedAt: now,
	})
	if ok {
		t.Fatal("expected stale precondition to lose")
	}
}

func TestMemoryRetentionKeepsVIPs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _ = repo.Sync(ctx, SyncParams{SessionID: "cold", Snapshot: signals.Snapshot{PagesVisited: []string{"/"}}, Now: old}, evaluate)
	_, _ = repo.Sync(ctx, SyncParams{SessionID: "vip", Snapshot: ultraSnapshot, Now: old}, evaluate)

	removed, err := repo.DeleteInactiveBefore(ctx, old.Add(24*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("expected one removal, got %d err=%v", removed, err)
	}
	if _, err := repo.GetBySession(ctx, "vip"); err != nil {
		t.Fatalf("expected VIP kept: %v", err)
	}
}
