package signals

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStoreRecordsSignals(t *testing.T) {
	clock := newFakeClock()
	st := NewStore("s-1", WithClock(clock.Now))

	st.RecordPageVisit("/pricing")
	st.RecordPageVisit("/pricing/")
	st.RecordPageVisit("/services?ref=nav")
	st.RecordScrollDepth(40)
	st.RecordScrollDepth(20)
	st.RecordScrollDepth(140)
	st.RecordTimeOnSite(30)
	st.RecordTimeOnSite(-10)
	st.RecordFormInteraction()
	st.RecordServiceView()
	st.RecordServiceView()
	st.RecordUTM("linkedin", "social")
	st.RecordUTM("", "")
	st.MarkTrialStarted()

	snap := st.Snapshot()
	if want := []string{"/pricing", "/services"}; !reflect.DeepEqual(snap.PagesVisited, want) {
		t.Fatalf("expected pages %v, got %v", want, snap.PagesVisited)
	}
	if snap.ScrollDepthPercent != 100 {
		t.Fatalf("expected scroll clamped to 100, got %d", snap.ScrollDepthPercent)
	}
	if snap.TimeOnSiteSeconds != 30 {
		t.Fatalf("expected negative delta ignored, got %d", snap.TimeOnSiteSeconds)
	}
	if snap.FormInteractions != 1 || snap.ServicesViewed != 2 {
		t.Fatalf("unexpected counters form=%d services=%d", snap.FormInteractions, snap.ServicesViewed)
	}
	if snap.UTMSource != "linkedin" || snap.UTMMedium != "social" {
		t.Fatalf("expected utm kept, got %q/%q", snap.UTMSource, snap.UTMMedium)
	}
	if !snap.TrialStarted {
		t.Fatal("expected trial started")
	}
	if snap.Version != Version || snap.SessionID != "s-1" {
		t.Fatalf("unexpected identity %d/%q", snap.Version, snap.SessionID)
	}
}

func TestStoreCountsReturnVisitAfterIdleGap(t *testing.T) {
	clock := newFakeClock()
	st := NewStore("s-1", WithClock(clock.Now))

	st.RecordPageVisit("/")
	clock.Advance(29 * time.Minute)
	st.RecordPageVisit("/about")
	if got := st.Snapshot().ReturnVisits; got != 0 {
		t.Fatalf("expected no return visit inside idle window, got %d", got)
	}

	clock.Advance(31 * time.Minute)
	st.RecordPageVisit("/pricing")
	if got := st.Snapshot().ReturnVisits; got != 1 {
		t.Fatalf("expected one return visit after idle gap, got %d", got)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	st := NewStore("s-1")
	st.RecordPageVisit("/pricing")

	snap := st.Snapshot()
	snap.PagesVisited[0] = "/tampered"
	*snap.LastActivityAt = time.Time{}

	again := st.Snapshot()
	if again.PagesVisited[0] != "/pricing" {
		t.Fatalf("expected store unaffected, got %v", again.PagesVisited)
	}
	if again.LastActivityAt.IsZero() {
		t.Fatal("expected last activity unaffected")
	}
}

func TestStoreIsSafeForConcurrentUse(t *testing.T) {
	st := NewStore("s-1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordServiceView()
			st.RecordTimeOnSite(2)
			_ = st.Snapshot()
		}()
	}
	wg.Wait()

	snap := st.Snapshot()
	if snap.ServicesViewed != 50 || snap.TimeOnSiteSeconds != 100 {
		t.Fatalf("lost updates: services=%d time=%d", snap.ServicesViewed, snap.TimeOnSiteSeconds)
	}
}

func TestMergeTakesMaximaAndUnion(t *testing.T) {
	a := Snapshot{
		SessionID:          "s-1",
		PagesVisited:       []string{"/pricing", "/"},
		TimeOnSiteSeconds:  120,
		ScrollDepthPercent: 80,
		ReturnVisits:       1,
		UTMSource:          "linkedin",
	}
	b := Snapshot{
		SessionID:         "s-1",
		PagesVisited:      []string{"/contact"},
		TimeOnSiteSeconds: 60,
		ReturnVisits:      3,
		FormInteractions:  2,
		UTMSource:         "google",
		UTMMedium:         "cpc",
		TrialStarted:      true,
	}

	got := Merge(a, b)
	if want := []string{"/", "/contact", "/pricing"}; !reflect.DeepEqual(got.PagesVisited, want) {
		t.Fatalf("expected pages %v, got %v", want, got.PagesVisited)
	}
	if got.TimeOnSiteSeconds != 120 || got.ScrollDepthPercent != 80 || got.ReturnVisits != 3 || got.FormInteractions != 2 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if got.UTMSource != "google" || got.UTMMedium != "cpc" {
		t.Fatalf("expected incoming utm to win, got %q/%q", got.UTMSource, got.UTMMedium)
	}
	if !got.TrialStarted {
		t.Fatal("expected trial started to stick")
	}

	kept := Merge(b, Snapshot{SessionID: "s-1"})
	if kept.UTMSource != "google" {
		t.Fatalf("expected empty utm not to overwrite, got %q", kept.UTMSource)
	}
	if !kept.TrialStarted {
		t.Fatal("expected trial flag never to reset")
	}
}

func TestMergeIsIdempotentAndOrderInsensitive(t *testing.T) {
	a := Snapshot{SessionID: "s-1", PagesVisited: []string{"/pricing"}, TimeOnSiteSeconds: 300, ServicesViewed: 1}
	b := Snapshot{SessionID: "s-1", PagesVisited: []string{"/services"}, ScrollDepthPercent: 60, ServicesViewed: 4}

	ab := Merge(a, b)
	if again := Merge(ab, b); !reflect.DeepEqual(again, ab) {
		t.Fatalf("merge not idempotent:\n%+v\n%+v", again, ab)
	}
	if aba := Merge(ab, a); !reflect.DeepEqual(aba, ab) {
		t.Fatalf("A-B-A differs from A-B:\n%+v\n%+v", aba, ab)
	}
	if ba := Merge(b, a); !reflect.DeepEqual(ba.PagesVisited, ab.PagesVisited) || ba.ServicesViewed != ab.ServicesViewed {
		t.Fatalf("merge not commutative on counters/sets:\n%+v\n%+v", ba, ab)
	}
}

func TestApplyRejectsUnknownEvent(t *testing.T) {
	st := NewStore("s-1")
	if err := st.Apply(Event{Type: EventPageVisit, Path: "/trial"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Apply(Event{Type: "hover"}); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
	if !st.Snapshot().HasPage("/trial") {
		t.Fatal("expected page recorded")
	}
}

func TestRegistrySeedsAndEvicts(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(10*time.Minute, WithClock(clock.Now))

	seeds := 0
	seed := func(_ context.Context, id string) (Snapshot, bool, error) {
		seeds++
		return Snapshot{SessionID: id, TimeOnSiteSeconds: 200}, true, nil
	}

	st, err := reg.Load(context.Background(), "s-1", seed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st.RecordTimeOnSite(10)
	if got := st.Snapshot().TimeOnSiteSeconds; got != 210 {
		t.Fatalf("expected seeded time to accumulate, got %d", got)
	}

	same, _ := reg.Load(context.Background(), "s-1", seed)
	if same != st || seeds != 1 {
		t.Fatalf("expected cached store, seeds=%d", seeds)
	}

	clock.Advance(11 * time.Minute)
	if removed := reg.EvictIdle(); removed != 1 || reg.Len() != 0 {
		t.Fatalf("expected idle store evicted, removed=%d len=%d", removed, reg.Len())
	}
}

func TestRegistryPropagatesSeedError(t *testing.T) {
	reg := NewRegistry(time.Minute)
	boom := errors.New("db down")
	_, err := reg.Load(context.Background(), "s-1", func(context.Context, string) (Snapshot, bool, error) {
		return Snapshot{}, false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected seed error, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("expected nothing cached after failed seed")
	}
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b {
		t.Fatal("expected distinct session ids")
	}
	if len(a) != 36 {
		t.Fatalf("expected uuid string, got %q", a)
	}
}
