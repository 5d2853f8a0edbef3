package signals

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// ReturnVisitIdle is the inactivity gap after which the next page visit
// counts as a return visit.
const ReturnVisitIdle = 30 * time.Minute

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store records signals for a single session. It is safe for concurrent use;
// every method runs in O(1) amortized time except Snapshot, which copies.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	state    Snapshot
	pages    map[string]struct{}
	revision uint64
}

// NewStore creates an empty store for sessionID.
func NewStore(sessionID string, opts ...Option) *Store {
	return Restore(Snapshot{SessionID: sessionID}, opts...)
}

// Restore creates a store seeded with a previously captured snapshot.
func Restore(snap Snapshot, opts ...Option) *Store {
	norm := snap.Normalize()
	s := &Store{
		now:   time.Now,
		state: norm,
		pages: make(map[string]struct{}, len(norm.PagesVisited)),
	}
	for _, p := range norm.PagesVisited {
		s.pages[p] = struct{}{}
	}
	s.state.PagesVisited = nil
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// Revision increases on every recorded signal. Callers use it to skip
// syncing when nothing changed.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// LastActivity returns the time of the most recent recorded signal.
func (s *Store) LastActivity() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastActivityAt == nil {
		return time.Time{}, false
	}
	return *s.state.LastActivityAt, true
}

// RecordPageVisit adds path to the visited set. A visit arriving after more
// than ReturnVisitIdle of inactivity also counts as a return visit.
func (s *Store) RecordPageVisit(path string) {
	p := NormalizePath(path)
	if p == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if last := s.state.LastActivityAt; last != nil && now.Sub(*last) > ReturnVisitIdle {
		s.state.ReturnVisits++
	}
	s.pages[p] = struct{}{}
	s.touch(now)
}

// RecordScrollDepth keeps the deepest scroll seen, clamped to 0..100.
func (s *Store) RecordScrollDepth(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ScrollDepthPercent = max(s.state.ScrollDepthPercent, clampPercent(percent))
	s.touch(s.now().UTC())
}

// RecordTimeOnSite adds deltaSeconds of engaged time. Negative deltas are ignored.
func (s *Store) RecordTimeOnSite(deltaSeconds int) {
	if deltaSeconds <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.TimeOnSiteSeconds += deltaSeconds
	s.touch(s.now().UTC())
}

// RecordFormInteraction counts one interaction with a form field.
func (s *Store) RecordFormInteraction() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.FormInteractions++
	s.touch(s.now().UTC())
}

// RecordServiceView counts one view of a service detail.
func (s *Store) RecordServiceView() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ServicesViewed++
	s.touch(s.now().UTC())
}

// RecordUTM stores campaign attribution. Empty values leave the current ones intact.
func (s *Store) RecordUTM(source, medium string) {
	source = strings.TrimSpace(source)
	medium = strings.TrimSpace(medium)
	if source == "" && medium == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if source != "" {
		s.state.UTMSource = source
	}
	if medium != "" {
		s.state.UTMMedium = medium
	}
	s.touch(s.now().UTC())
}

// MarkTrialStarted sets the trial flag. It never resets.
func (s *Store) MarkTrialStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.TrialStarted = true
	s.touch(s.now().UTC())
}

// Absorb merges snap into the store, e.g. a persisted snapshot recovered after
// the local one was reset.
func (s *Store) Absorb(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshotLocked()
	merged := Merge(current, snap)
	for _, p := range merged.PagesVisited {
		s.pages[p] = struct{}{}
	}
	merged.PagesVisited = nil
	s.state = merged
	s.revision++
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	out := s.state
	out.Version = Version
	out.PagesVisited = make([]string, 0, len(s.pages))
	for p := range s.pages {
		out.PagesVisited = append(out.PagesVisited, p)
	}
	slices.Sort(out.PagesVisited)
	if s.state.LastActivityAt != nil {
		t := *s.state.LastActivityAt
		out.LastActivityAt = &t
	}
	return out
}

func (s *Store) touch(now time.Time) {
	if last := s.state.LastActivityAt; last == nil || now.After(*last) {
		s.state.LastActivityAt = &now
	}
	s.revision++
}
