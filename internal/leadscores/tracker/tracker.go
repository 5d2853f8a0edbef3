// Package tracker is the client side of lead scoring: it accumulates signals
// locally and pushes snapshots to the sync endpoint.
package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/logger"
)

const (
	DefaultInterval     = 30 * time.Second
	defaultFinalTimeout = 5 * time.Second
)

// ErrSyncInProgress is returned by Flush when another sync has not finished.
var ErrSyncInProgress = errors.New("sync already in progress")

// Syncer sends one snapshot to the server.
type Syncer interface {
	Sync(ctx context.Context, req transport.SyncRequest) (transport.LeadScoreResponse, error)
}

type Option func(*Tracker)

// WithInterval sets the period of Run.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithLogger sets the logger used for failed background syncs.
func WithLogger(log *logger.Logger) Option {
	return func(t *Tracker) {
		t.log = log
	}
}

// Tracker owns the local signal store of one visitor session.
type Tracker struct {
	store    *signals.Store
	syncer   Syncer
	interval time.Duration
	log      *logger.Logger

	inflight sync.Mutex

	mu        sync.Mutex
	email     string
	synced    uint64
	hasSynced bool
	last      *transport.LeadScoreResponse
}

func New(store *signals.Store, syncer Syncer, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		syncer:   syncer,
		interval: DefaultInterval,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store exposes the local store so callers can record signals.
func (t *Tracker) Store() *signals.Store {
	return t.store
}

// SetEmail attaches a known email to subsequent syncs. Empty values are ignored.
func (t *Tracker) SetEmail(email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}
	t.mu.Lock()
	t.email = email
	t.mu.Unlock()
}

// Last returns the most recent server response, if any.
func (t *Tracker) Last() (transport.LeadScoreResponse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return transport.LeadScoreResponse{}, false
	}
	return *t.last, true
}

// Pending reports whether the store changed since the last successful sync.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.hasSynced || t.store.Revision() != t.synced
}

// Flush sends the current snapshot. Only one sync runs at a time; a failed
// sync keeps local state untouched so the next attempt resends everything.
func (t *Tracker) Flush(ctx context.Context) (transport.LeadScoreResponse, error) {
	if !t.inflight.TryLock() {
		return transport.LeadScoreResponse{}, ErrSyncInProgress
	}
	defer t.inflight.Unlock()

	revision := t.store.Revision()
	snap := t.store.Snapshot()

	t.mu.Lock()
	email := t.email
	t.mu.Unlock()

	resp, err := t.syncer.Sync(ctx, transport.SyncRequest{
		SessionID: snap.SessionID,
		Snapshot:  transport.FromSnapshot(snap),
		Email:     email,
	})
	if err != nil {
		return transport.LeadScoreResponse{}, err
	}

	t.mu.Lock()
	t.synced = revision
	t.hasSynced = true
	t.last = &resp
	t.mu.Unlock()
	return resp, nil
}

// Run syncs on every tick when the store changed, and once more on shutdown.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if t.Pending() {
				finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultFinalTimeout)
				t.flushLogged(finalCtx)
				cancel()
			}
			return
		case <-ticker.C:
			if t.Pending() {
				t.flushLogged(ctx)
			}
		}
	}
}

func (t *Tracker) flushLogged(ctx context.Context) {
	if _, err := t.Flush(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		t.log.Warn("lead score sync failed", "session_id", t.store.SessionID(), "error", err)
	}
}
