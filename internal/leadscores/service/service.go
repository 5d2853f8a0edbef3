package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"concierge_backend/internal/events"
	"concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/leadscores/scoring"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/logger"
)

// DefaultSyncTimeout bounds a single sync when no timeout is configured.
const DefaultSyncTimeout = 5 * time.Second

type Option func(*Service)

// WithSyncTimeout overrides DefaultSyncTimeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithInlineDelivery makes the service hand admin notifications straight to
// the in-process bus instead of waiting for the scheduler to pick them up.
func WithInlineDelivery(enabled bool) Option {
	return func(s *Service) {
		s.inlineDelivery = enabled
	}
}

type Service struct {
	repo           repository.Store
	registry       *signals.Registry
	bus            events.Bus
	log            *logger.Logger
	syncTimeout    time.Duration
	now            func() time.Time
	inlineDelivery bool
}

func New(repo repository.Store, registry *signals.Registry, bus events.Bus, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		registry:    registry,
		bus:         bus,
		log:         log,
		syncTimeout: DefaultSyncTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate merges incoming into stored and scores the result.
func Evaluate(stored *signals.Snapshot, incoming signals.Snapshot) repository.Evaluation {
	merged := incoming.Normalize()
	if stored != nil {
		merged = signals.Merge(*stored, incoming)
	}
	score := scoring.Compute(merged)
	return repository.Evaluation{
		Snapshot: merged,
		Score:    score,
		VIP:      scoring.ClassifyVIP(score),
	}
}

// Sync merges a client snapshot into the session record.
func (s *Service) Sync(ctx context.Context, req transport.SyncRequest) (transport.LeadScoreResponse, error) {
	if v := req.Snapshot.Version; v != 0 && v != signals.Version {
		return transport.LeadScoreResponse{}, apperr.Validation(fmt.Sprintf("unsupported snapshot version %d", v))
	}
	sessionID := strings.TrimSpace(req.SessionID)
	rec, err := s.sync(ctx, sessionID, req.Snapshot.ToSnapshot(sessionID), req.Email)
	if err != nil {
		return transport.LeadScoreResponse{}, err
	}
	return transport.ToLeadScoreResponse(rec), nil
}

// RecordEvents applies raw beacon signals to the server-held store of the
// session and syncs the result.
func (s *Service) RecordEvents(ctx context.Context, req transport.EventsRequest) (transport.LeadScoreResponse, error) {
	for _, e := range req.Events {
		if !signals.ValidEventType(e.Type) {
			return transport.LeadScoreResponse{}, apperr.Validation(fmt.Sprintf("unknown event type %q", e.Type))
		}
	}

	sessionID := strings.TrimSpace(req.SessionID)
	store, err := s.registry.Load(ctx, sessionID, s.seed)
	if err != nil {
		return transport.LeadScoreResponse{}, apperr.Unavailable("load session signals failed", err).WithOp("RecordEvents")
	}
	for _, e := range req.Events {
		if err := store.Apply(e.ToEvent()); err != nil {
			return transport.LeadScoreResponse{}, apperr.Validation(err.Error())
		}
	}

	rec, err := s.sync(ctx, sessionID, store.Snapshot(), req.Email)
	if err != nil {
		return transport.LeadScoreResponse{}, err
	}
	return transport.ToLeadScoreResponse(rec), nil
}

// MarkOrlaEngaged records that the visitor talked to the concierge assistant.
func (s *Service) MarkOrlaEngaged(ctx context.Context, sessionID string) (transport.OrlaEngagedResponse, error) {
	updated, err := s.repo.MarkOrlaEngaged(ctx, sessionID)
	if err != nil {
		return transport.OrlaEngagedResponse{}, err
	}
	return transport.OrlaEngagedResponse{Updated: updated}, nil
}

func (s *Service) GetLeadScore(ctx context.Context, sessionID string) (transport.LeadScoreResponse, error) {
	rec, err := s.repo.GetBySession(ctx, sessionID)
	if err != nil {
		return transport.LeadScoreResponse{}, err
	}
	return transport.ToLeadScoreResponse(rec), nil
}

func (s *Service) ListLeadScores(ctx context.Context, req transport.ListLeadScoresRequest) (transport.LeadScoreListResponse, error) {
	filter := repository.LeadScoreFilter{VIPOnly: req.VIPOnly, Limit: req.Limit, Offset: req.Offset}
	if req.Tier != "" {
		tier := scoring.Tier(req.Tier)
		if !tier.IsValid() {
			return transport.LeadScoreListResponse{}, apperr.Validation("invalid tier")
		}
		filter.Tier = &tier
	}

	items, total, err := s.repo.ListLeadScores(ctx, filter)
	if err != nil {
		return transport.LeadScoreListResponse{}, err
	}
	resp := transport.LeadScoreListResponse{Items: make([]transport.LeadScoreResponse, 0, len(items)), Total: total}
	for _, rec := range items {
		resp.Items = append(resp.Items, transport.ToLeadScoreResponse(rec))
	}
	return resp, nil
}

// CleanupInactive removes non-VIP sessions idle for longer than retention.
func (s *Service) CleanupInactive(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteInactiveBefore(ctx, s.now().UTC().Add(-retention))
}

func (s *Service) sync(ctx context.Context, sessionID string, snap signals.Snapshot, email string) (repository.LeadScoreRecord, error) {
	if sessionID == "" {
		return repository.LeadScoreRecord{}, apperr.Validation("sessionId is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	params := repository.SyncParams{
		SessionID: sessionID,
		Snapshot:  snap,
		Now:       s.now().UTC(),
	}
	if email = strings.TrimSpace(email); email != "" {
		params.Email = &email
	}

	outcome, err := s.repo.Sync(ctx, params, Evaluate)
	if err != nil {
		s.log.WithSessionID(sessionID).DatabaseError("lead score sync", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return repository.LeadScoreRecord{}, apperr.Unavailable("lead score sync timed out", err).WithOp("Sync")
		}
		return repository.LeadScoreRecord{}, apperr.Unavailable("lead score sync failed", err).WithOp("Sync")
	}

	rec := outcome.Record
	log := s.log.WithContext(ctx)
	log.LeadScoreSynced(sessionID, rec.Score.Total, string(rec.Score.Tier), rec.IsVIP)

	s.bus.Publish(ctx, events.LeadScoreSynced{
		BaseEvent: events.NewBaseEvent(),
		SessionID: sessionID,
		Score:     rec.Score.Total,
		Tier:      string(rec.Score.Tier),
		IsVIP:     rec.IsVIP,
		Created:   outcome.Created,
	})

	if alert := outcome.Alert; alert != nil {
		log.VIPEscalation(sessionID, string(alert.AlertType), alert.Score, outcome.Notified)
		s.bus.Publish(ctx, events.VIPAlertCreated{
			BaseEvent: events.NewBaseEvent(),
			AlertID:   alert.ID,
			SessionID: sessionID,
			AlertType: string(alert.AlertType),
			Score:     alert.Score,
			Tier:      string(alert.Tier),
			Email:     alert.Email,
		})
	}

	if outcome.Notified && s.inlineDelivery {
		s.bus.Publish(ctx, events.NotificationOutboxDue{
			BaseEvent: events.NewBaseEvent(),
			OutboxID:  outcome.OutboxID,
		})
	}

	return rec, nil
}

func (s *Service) seed(ctx context.Context, sessionID string) (signals.Snapshot, bool, error) {
	rec, err := s.repo.GetBySession(ctx, sessionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return signals.Snapshot{}, false, nil
	}
	if err != nil {
		return signals.Snapshot{}, false, err
	}
	return rec.Signals, true, nil
}
