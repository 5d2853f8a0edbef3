// Package signals accumulates behavioral facts about anonymous visitor sessions.
// Snapshots only ever grow: counters and scroll depth take the maximum, page
// sets are unioned and one-way flags never reset, so merging is safe to repeat.
package signals

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version identifies the snapshot layout persisted alongside lead scores.
const Version = 1

// MaxScrollDepth is the upper bound for ScrollDepthPercent.
const MaxScrollDepth = 100

// Snapshot is the accumulated signal state of one session.
type Snapshot struct {
	Version            int        `json:"version"`
	SessionID          string     `json:"sessionId"`
	PagesVisited       []string   `json:"pagesVisited"`
	TimeOnSiteSeconds  int        `json:"timeOnSiteSeconds"`
	ScrollDepthPercent int        `json:"scrollDepthPercent"`
	ReturnVisits       int        `json:"returnVisits"`
	ServicesViewed     int        `json:"servicesViewed"`
	FormInteractions   int        `json:"formInteractions"`
	UTMSource          string     `json:"utmSource,omitempty"`
	UTMMedium          string     `json:"utmMedium,omitempty"`
	TrialStarted       bool       `json:"trialStarted"`
	LastActivityAt     *time.Time `json:"lastActivityAt,omitempty"`
}

// NewSessionID returns a fresh anonymous session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Normalize returns a copy with a canonical page set, clamped numbers and
// trimmed attribution. Merge and the score calculator expect normalized input.
func (s Snapshot) Normalize() Snapshot {
	out := s
	out.Version = Version
	out.SessionID = strings.TrimSpace(s.SessionID)
	out.PagesVisited = normalizePages(s.PagesVisited)
	out.TimeOnSiteSeconds = max(s.TimeOnSiteSeconds, 0)
	out.ScrollDepthPercent = clampPercent(s.ScrollDepthPercent)
	out.ReturnVisits = max(s.ReturnVisits, 0)
	out.ServicesViewed = max(s.ServicesViewed, 0)
	out.FormInteractions = max(s.FormInteractions, 0)
	out.UTMSource = strings.TrimSpace(s.UTMSource)
	out.UTMMedium = strings.TrimSpace(s.UTMMedium)
	if s.LastActivityAt != nil {
		t := s.LastActivityAt.UTC()
		out.LastActivityAt = &t
	}
	return out
}

// HasPage reports whether a normalized path was visited.
func (s Snapshot) HasPage(path string) bool {
	_, found := slices.BinarySearch(s.PagesVisited, path)
	return found
}

// Merge folds incoming into base. Counters and scroll depth take the max,
// pages are unioned, TrialStarted is sticky, and attribution is
// last-write-wins for non-empty incoming values only.
func Merge(base, incoming Snapshot) Snapshot {
	base = base.Normalize()
	incoming = incoming.Normalize()

	out := base
	if out.SessionID == "" {
		out.SessionID = incoming.SessionID
	}
	out.PagesVisited = unionSorted(base.PagesVisited, incoming.PagesVisited)
	out.TimeOnSiteSeconds = max(base.TimeOnSiteSeconds, incoming.TimeOnSiteSeconds)
	out.ScrollDepthPercent = max(base.ScrollDepthPercent, incoming.ScrollDepthPercent)
	out.ReturnVisits = max(base.ReturnVisits, incoming.ReturnVisits)
	out.ServicesViewed = max(base.ServicesViewed, incoming.ServicesViewed)
	out.FormInteractions = max(base.FormInteractions, incoming.FormInteractions)
	if incoming.UTMSource != "" {
		out.UTMSource = incoming.UTMSource
	}
	if incoming.UTMMedium != "" {
		out.UTMMedium = incoming.UTMMedium
	}
	out.TrialStarted = base.TrialStarted || incoming.TrialStarted
	out.LastActivityAt = laterOf(base.LastActivityAt, incoming.LastActivityAt)
	return out
}

// NormalizePath canonicalizes a visited path: query and fragment are dropped
// and trailing slashes removed. Returns "" for unusable input.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func normalizePages(pages []string) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		if n := NormalizePath(p); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func unionSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func clampPercent(v int) int {
	return min(max(v, 0), MaxScrollDepth)
}

func laterOf(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}
