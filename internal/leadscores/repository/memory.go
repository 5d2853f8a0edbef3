package repository

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"concierge_backend/internal/leadscores/alerts"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/platform/apperr"

	"github.com/google/uuid"
)

// OutboxMessage is an admin notification recorded by Memory.
type OutboxMessage struct {
	ID      uuid.UUID
	Payload AdminAlertPayload
}

// Memory is an in-process Store with the same atomicity guarantees as the
// PostgreSQL repository. Every mutation runs under one lock and commits only
// after all steps succeed. Used by tests and local development.
type Memory struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	alerts  map[uuid.UUID]*VIPAlert
	outbox  []OutboxMessage
	syncErr error
}

type memoryRecord struct {
	rec   LeadScoreRecord
	level int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*memoryRecord),
		alerts:  make(map[uuid.UUID]*VIPAlert),
	}
}

// FailSyncs makes every following Sync fail with err until called with nil.
func (m *Memory) FailSyncs(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncErr = err
}

// OutboxMessages returns the admin notifications written so far.
func (m *Memory) OutboxMessages() []OutboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.outbox)
}

func (m *Memory) Sync(ctx context.Context, params SyncParams, evaluate Evaluator) (SyncOutcome, error) {
	if err := ctx.Err(); err != nil {
		return SyncOutcome{}, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncErr != nil {
		return SyncOutcome{}, m.syncErr
	}

	existing, found := m.records[params.SessionID]
	var next memoryRecord
	var stored *signals.Snapshot
	if found {
		next = cloneMemoryRecord(existing)
		snap := next.rec.Signals
		stored = &snap
	} else {
		next = memoryRecord{rec: LeadScoreRecord{
			ID:             uuid.New(),
			SessionID:      params.SessionID,
			LastActivityAt: now,
			CreatedAt:      now,
		}}
	}

	eval := evaluate(stored, params.Snapshot)

	rec := &next.rec
	rec.Score = cloneScore(eval.Score)
	rec.Signals = eval.Snapshot
	rec.Signals.SessionID = params.SessionID
	if email := nonEmpty(params.Email); email != nil {
		rec.Email = email
	}
	if eval.VIP.IsVIP {
		if rec.VIPDetectedAt == nil {
			t := now
			rec.VIPDetectedAt = &t
		}
		rec.IsVIP = true
	}
	if now.After(rec.LastActivityAt) {
		rec.LastActivityAt = now
	}
	rec.UpdatedAt = now

	outcome := SyncOutcome{Created: !found}

	var newAlert *VIPAlert
	if rank := eval.VIP.AlertType.Rank(); rank > next.level {
		next.level = rank
		rec.HighestAlert = eval.VIP.AlertType
		if !m.hasAlertLocked(params.SessionID, eval.VIP.AlertType) {
			newAlert = &VIPAlert{
				ID:        uuid.New(),
				SessionID: params.SessionID,
				Score:     rec.Score.Total,
				Tier:      rec.Score.Tier,
				Signals:   rec.Signals,
				Breakdown: maps.Clone(rec.Score.Breakdown),
				AlertType: eval.VIP.AlertType,
				Status:    alerts.StatusNew,
				Email:     rec.Email,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
	}

	var msg *OutboxMessage
	if eval.VIP.AlertType == scoring.AlertUltraHighIntent && !rec.AdminNotified {
		rec.AdminNotified = true
		msg = &OutboxMessage{ID: uuid.New(), Payload: newAdminAlertPayload(*rec, newAlert)}
	}

	if err := ctx.Err(); err != nil {
		return SyncOutcome{}, err
	}

	// Commit.
	m.records[params.SessionID] = &next
	if newAlert != nil {
		m.alerts[newAlert.ID] = newAlert
		a := *newAlert
		outcome.Alert = &a
	}
	if msg != nil {
		m.outbox = append(m.outbox, *msg)
		outcome.Notified = true
		outcome.OutboxID = msg.ID
	}
	outcome.Record = cloneMemoryRecord(&next).rec
	return outcome, nil
}

func (m *Memory) MarkOrlaEngaged(ctx context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[sessionID]
	if !ok {
		return false, apperr.NotFound(leadScoreNotFoundMsg)
	}
	if r.rec.OrlaEngaged {
		return false, nil
	}
	r.rec.OrlaEngaged = true
	return true, nil
}

func (m *Memory) GetBySession(ctx context.Context, sessionID string) (LeadScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[sessionID]
	if !ok {
		return LeadScoreRecord{}, apperr.NotFound(leadScoreNotFoundMsg)
	}
	return cloneMemoryRecord(r).rec, nil
}

func (m *Memory) ListLeadScores(ctx context.Context, filter LeadScoreFilter) ([]LeadScoreRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []LeadScoreRecord
	for _, r := range m.records {
		if filter.Tier != nil && r.rec.Score.Tier != *filter.Tier {
			continue
		}
		if filter.VIPOnly && !r.rec.IsVIP {
			continue
		}
		matched = append(matched, cloneMemoryRecord(r).rec)
	}
	slices.SortFunc(matched, func(a, b LeadScoreRecord) int {
		if a.Score.Total != b.Score.Total {
			return b.Score.Total - a.Score.Total
		}
		return b.LastActivityAt.Compare(a.LastActivityAt)
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (m *Memory) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, r := range m.records {
		if r.rec.IsVIP || !r.rec.LastActivityAt.Before(cutoff) {
			continue
		}
		delete(m.records, id)
		for aid, a := range m.alerts {
			if a.SessionID == id {
				delete(m.alerts, aid)
			}
		}
		removed++
	}
	return removed, nil
}

func (m *Memory) ListAlerts(ctx context.Context, filter AlertFilter) ([]VIPAlert, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []VIPAlert
	for _, a := range m.alerts {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.AlertType != nil && a.AlertType != *filter.AlertType {
			continue
		}
		matched = append(matched, *a)
	}
	slices.SortFunc(matched, func(a, b VIPAlert) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (m *Memory) GetAlert(ctx context.Context, id uuid.UUID) (VIPAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return VIPAlert{}, apperr.NotFound(alertNotFoundMsg)
	}
	return *a, nil
}

func (m *Memory) UpdateAlertStatus(ctx context.Context, params UpdateAlertStatusParams) (VIPAlert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[params.ID]
	if !ok || a.Status != params.From {
		return VIPAlert{}, false, nil
	}
	a.Status = params.To
	if params.Notes != nil {
		notes := *params.Notes
		a.Notes = &notes
	}
	reviewed := params.ReviewedAt
	a.ReviewedAt = &reviewed
	a.UpdatedAt = params.ReviewedAt
	return *a, true, nil
}

func (m *Memory) GetStats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Stats
	var sum int
	for _, r := range m.records {
		if r.rec.IsVIP {
			stats.TotalVIPs++
			sum += r.rec.Score.Total
		}
	}
	if stats.TotalVIPs > 0 {
		stats.AvgScore = float64(sum) / float64(stats.TotalVIPs)
	}
	for _, a := range m.alerts {
		switch a.Status {
		case alerts.StatusNew:
			stats.NewAlerts++
		case alerts.StatusConverted:
			stats.Converted++
		}
	}
	return stats, nil
}

func (m *Memory) hasAlertLocked(sessionID string, alertType scoring.AlertType) bool {
	for _, a := range m.alerts {
		if a.SessionID == sessionID && a.AlertType == alertType {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	limit = clampLimit(limit)
	offset = max(offset, 0)
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return slices.Clone(items[offset:end])
}

func cloneMemoryRecord(r *memoryRecord) memoryRecord {
	out := *r
	out.rec.Score = cloneScore(r.rec.Score)
	out.rec.Signals.PagesVisited = slices.Clone(r.rec.Signals.PagesVisited)
	return out
}

func cloneScore(s scoring.LeadScore) scoring.LeadScore {
	s.Breakdown = maps.Clone(s.Breakdown)
	return s
}
