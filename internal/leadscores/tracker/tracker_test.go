package tracker

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"concierge_backend/internal/leadscores/handler"
	"concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/leadscores/service"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/events"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeSyncer struct {
	mu       sync.Mutex
	requests []transport.SyncRequest
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context, req transport.SyncRequest) (transport.LeadScoreResponse, error) {
	if f.block != nil {
		close(f.started)
		select {
		case <-f.block:
		case <-ctx.Done():
			return transport.LeadScoreResponse{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return transport.LeadScoreResponse{}, f.err
	}
	return transport.LeadScoreResponse{SessionID: req.SessionID, Score: len(req.Snapshot.PagesVisited)}, nil
}

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestFlushSendsCurrentSnapshot(t *testing.T) {
	syncer := &fakeSyncer{}
	tr := New(signals.NewStore("session-tracker-1"), syncer)
	tr.SetEmail("  visitor@example.com ")
	tr.SetEmail("")

	tr.Store().RecordPageVisit("/pricing")
	if !tr.Pending() {
		t.Fatal("expected pending changes before first sync")
	}

	resp, err := tr.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Score != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	req := syncer.requests[0]
	if req.SessionID != "session-tracker-1" || req.Email != "visitor@example.com" || len(req.Snapshot.PagesVisited) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}
	if tr.Pending() {
		t.Fatal("expected nothing pending after sync")
	}
	if last, ok := tr.Last(); !ok || last.Score != 1 {
		t.Fatal("expected last response stored")
	}

	tr.Store().RecordScrollDepth(40)
	if !tr.Pending() {
		t.Fatal("expected new signal to be pending")
	}
}

func TestFailedSyncKeepsLocalState(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("network down")}
	tr := New(signals.NewStore("session-tracker-2"), syncer)

	tr.Store().RecordPageVisit("/pricing")
	if _, err := tr.Flush(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !tr.Pending() {
		t.Fatal("expected changes to stay pending after failure")
	}

	tr.Store().RecordPageVisit("/contact")
	syncer.err = nil
	resp, err := tr.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Score != 2 {
		t.Fatalf("expected retry to carry both pages, got %d", resp.Score)
	}
}

func TestSingleSyncInFlight(t *testing.T) {
	syncer := &fakeSyncer{block: make(chan struct{}), started: make(chan struct{})}
	tr := New(signals.NewStore("session-tracker-3"), syncer)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Flush(context.Background())
		done <- err
	}()
	<-syncer.started

	if _, err := tr.Flush(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}

	close(syncer.block)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if syncer.count() != 1 {
		t.Fatalf("expected one sync, got %d", syncer.count())
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	syncer := &fakeSyncer{}
	tr := New(signals.NewStore("session-tracker-4"), syncer, WithInterval(time.Hour))
	tr.Store().MarkTrialStarted()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	if syncer.count() != 1 {
		t.Fatalf("expected final sync on shutdown, got %d", syncer.count())
	}
}

func TestHTTPSyncerAgainstAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	val := validator.New()
	if err := transport.RegisterValidations(val); err != nil {
		t.Fatalf("register validations: %v", err)
	}
	log := logger.Discard()
	svc := service.New(repository.NewMemory(), signals.NewRegistry(time.Minute), events.NewInMemoryBus(log), log)
	engine := gin.New()
	handler.New(svc, val).RegisterPublicRoutes(engine.Group("/api/v1/lead-scores"))

	srv := httptest.NewServer(engine)
	defer srv.Close()

	tr := New(signals.NewStore("session-tracker-http"), NewHTTPSyncer(srv.URL+"/", nil))
	store := tr.Store()
	store.RecordPageVisit("/pricing")
	store.RecordTimeOnSite(650)
	store.RecordScrollDepth(95)
	store.RecordUTM("linkedin", "")

	resp, err := tr.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// pricing 15 + time 15 + scroll 8 + utm 25
	if resp.Score != 63 || resp.Tier != "hot" || resp.IsVIP {
		t.Fatalf("unexpected response %+v", resp)
	}

	bad := New(signals.NewStore("short"), NewHTTPSyncer(srv.URL, nil))
	if _, err := bad.Flush(context.Background()); err == nil {
		t.Fatal("expected validation failure for short session id")
	}
}
