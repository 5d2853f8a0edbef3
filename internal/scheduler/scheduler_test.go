package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"concierge_backend/internal/events"
	"concierge_backend/internal/notification/outbox"
	"concierge_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

func newTestRedis(t *testing.T) asynq.RedisClientOpt {
	t.Helper()
	mr := miniredis.RunT(t)
	return asynq.RedisClientOpt{Addr: mr.Addr()}
}

func pendingTaskIDs(t *testing.T, opt asynq.RedisClientOpt, queue string) []string {
	t.Helper()
	inspector := asynq.NewInspector(opt)
	defer func() { _ = inspector.Close() }()

	tasks, err := inspector.ListPendingTasks(queue)
	if err != nil {
		t.Fatalf("list pending tasks: %v", err)
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func TestEnqueueOutboxDueIsIdempotent(t *testing.T) {
	opt := newTestRedis(t)
	client := newClientWithOpt(opt, "")
	defer func() { _ = client.Close() }()

	id := uuid.New()
	ctx := context.Background()
	past := time.Now().Add(-time.Second)

	if err := client.EnqueueOutboxDue(ctx, id, past); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.EnqueueOutboxDue(ctx, id, past); err != nil {
		t.Fatalf("expected duplicate enqueue to be ignored, got %v", err)
	}

	ids := pendingTaskIDs(t, opt, defaultQueue)
	if len(ids) != 1 || ids[0] != deliveryTaskID(id) {
		t.Fatalf("expected one task for the outbox row, got %v", ids)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var client *Client
	if err := client.EnqueueOutboxDue(context.Background(), uuid.New(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "localhost:6380" || opt.Password != "secret" || opt.DB != 2 || opt.TLSConfig != nil {
		t.Fatalf("unexpected opt %+v", opt)
	}

	opt, err = redisClientOpt("rediss://localhost:6380", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure tls config")
	}

	if _, err := redisClientOpt("://bad", false); err == nil {
		t.Fatal("expected parse error")
	}
}

type fakeClaimer struct {
	mu       sync.Mutex
	pending  []outbox.Record
	released map[uuid.UUID]string
}

func (f *fakeClaimer) ClaimPending(_ context.Context, limit int) ([]outbox.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	claimed := f.pending[:n]
	f.pending = f.pending[n:]
	return claimed, nil
}

func (f *fakeClaimer) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released == nil {
		f.released = make(map[uuid.UUID]string)
	}
	f.released[id] = *lastError
	return nil
}

type failingEnqueuer struct{ fail uuid.UUID }

func (e failingEnqueuer) EnqueueOutboxDue(_ context.Context, id uuid.UUID, _ time.Time) error {
	if id == e.fail {
		return errors.New("redis unavailable")
	}
	return nil
}

func TestDispatchEnqueuesClaimedRecords(t *testing.T) {
	opt := newTestRedis(t)
	client := newClientWithOpt(opt, "alerts")
	defer func() { _ = client.Close() }()

	a, b := uuid.New(), uuid.New()
	claimer := &fakeClaimer{pending: []outbox.Record{
		{ID: a, RunAt: time.Now().Add(-time.Minute)},
		{ID: b, RunAt: time.Now().Add(-time.Minute)},
	}}
	d := NewNotificationOutboxDispatcher(claimer, client, logger.Discard())

	if n := d.dispatch(context.Background()); n != 2 {
		t.Fatalf("expected two enqueued, got %d", n)
	}
	if ids := pendingTaskIDs(t, opt, "alerts"); len(ids) != 2 {
		t.Fatalf("expected two pending tasks, got %v", ids)
	}
	if n := d.dispatch(context.Background()); n != 0 {
		t.Fatalf("expected nothing left to dispatch, got %d", n)
	}
}

func TestDispatchReleasesOnEnqueueFailure(t *testing.T) {
	ok, bad := uuid.New(), uuid.New()
	claimer := &fakeClaimer{pending: []outbox.Record{{ID: ok}, {ID: bad}}}
	d := NewNotificationOutboxDispatcher(claimer, failingEnqueuer{fail: bad}, logger.Discard())

	if n := d.dispatch(context.Background()); n != 1 {
		t.Fatalf("expected one enqueued, got %d", n)
	}
	if claimer.released[bad] != "redis unavailable" {
		t.Fatalf("expected failed record released with error, got %v", claimer.released)
	}
	if _, ok := claimer.released[ok]; ok {
		t.Fatal("expected enqueued record to stay claimed")
	}
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, e events.Event) { _ = b.PublishSync(ctx, e) }
func (b *recordingBus) PublishSync(_ context.Context, e events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
	return nil
}
func (b *recordingBus) Subscribe(string, events.Handler) {}

func TestWorkerPublishesOutboxDue(t *testing.T) {
	bus := &recordingBus{}
	w := newWorker(bus, logger.Discard())

	id := uuid.New()
	task, err := newVIPAlertDeliveryTask(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.handleVIPAlertDelivery(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one event, got %d", len(bus.published))
	}
	due, ok := bus.published[0].(events.NotificationOutboxDue)
	if !ok || due.OutboxID != id {
		t.Fatalf("unexpected event %+v", bus.published[0])
	}

	for _, raw := range []string{`{"outboxId":"nope"}`, `{}`} {
		bad := asynq.NewTask(TaskVIPAlertDelivery, []byte(raw))
		if err := w.handleVIPAlertDelivery(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("%s: expected skip retry, got %v", raw, err)
		}
	}
}

func TestBusEnqueuerSweepsPendingRows(t *testing.T) {
	bus := &recordingBus{}
	a, b := uuid.New(), uuid.New()
	claimer := &fakeClaimer{pending: []outbox.Record{{ID: a}, {ID: b}}}
	d := NewNotificationOutboxDispatcher(claimer, NewBusEnqueuer(bus), logger.Discard())

	if n := d.dispatch(context.Background()); n != 2 {
		t.Fatalf("expected two delivered, got %d", n)
	}
	if len(bus.published) != 2 {
		t.Fatalf("expected two events, got %d", len(bus.published))
	}
	for i, want := range []uuid.UUID{a, b} {
		due, ok := bus.published[i].(events.NotificationOutboxDue)
		if !ok || due.OutboxID != want {
			t.Fatalf("event %d: unexpected %+v", i, bus.published[i])
		}
	}
	if len(claimer.released) != 0 {
		t.Fatalf("expected nothing released, got %v", claimer.released)
	}
}

type fakeCleaner struct {
	retention time.Duration
	deleted   int64
	err       error
}

func (f *fakeCleaner) CleanupInactive(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return f.deleted, f.err
}

func TestLeadScoreCleanup(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 3}
	c := NewLeadScoreCleanup(cleaner, logger.Discard(), 0, 0)
	if got := c.cleanup(context.Background()); got != 3 {
		t.Fatalf("expected 3 deleted, got %d", got)
	}
	if cleaner.retention != defaultLeadScoreRetention {
		t.Fatalf("expected default retention, got %s", cleaner.retention)
	}

	cleaner.err = errors.New("db down")
	if got := c.cleanup(context.Background()); got != 0 {
		t.Fatalf("expected 0 on error, got %d", got)
	}
}
