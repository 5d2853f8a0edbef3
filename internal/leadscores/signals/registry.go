package signals

import (
	"context"
	"sync"
	"time"
)

// SeedFunc loads the last known snapshot for a session that has no store in
// memory yet. found is false for unknown sessions.
type SeedFunc func(ctx context.Context, sessionID string) (snap Snapshot, found bool, err error)

// Registry holds short-lived server-side stores for sessions reporting
// through beacons. Stores idle for longer than the TTL are evicted.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	ttl    time.Duration
	now    func() time.Time
	opts   []Option
}

// NewRegistry creates a registry whose stores expire after ttl of inactivity.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		stores: make(map[string]*Store),
		ttl:    ttl,
		now:    time.Now,
		opts:   opts,
	}
	probe := &Store{now: time.Now}
	for _, opt := range opts {
		opt(probe)
	}
	r.now = probe.now
	return r
}

// Load returns the store for sessionID, creating it from seed when absent.
// seed runs without the registry lock held.
func (r *Registry) Load(ctx context.Context, sessionID string, seed SeedFunc) (*Store, error) {
	r.mu.Lock()
	if st, ok := r.stores[sessionID]; ok {
		r.mu.Unlock()
		return st, nil
	}
	r.mu.Unlock()

	snap := Snapshot{SessionID: sessionID}
	if seed != nil {
		persisted, found, err := seed(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if found {
			snap = persisted
			snap.SessionID = sessionID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stores[sessionID]; ok {
		// Lost the race against a concurrent Load; keep the first store.
		st.Absorb(snap)
		return st, nil
	}
	st := Restore(snap, r.opts...)
	r.stores[sessionID] = st
	return st, nil
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// EvictIdle drops stores without activity for longer than the TTL and
// returns how many were removed.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, st := range r.stores {
		last, ok := st.LastActivity()
		if !ok || last.Before(cutoff) {
			delete(r.stores, id)
			removed++
		}
	}
	return removed
}

// Run evicts idle stores every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}
