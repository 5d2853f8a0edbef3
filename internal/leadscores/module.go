// Package leadscores provides the lead scoring and VIP detection bounded context.
// Visitors' engagement signals are merged per session, scored, and escalated to
// VIP alerts that admins review.
package leadscores

import (
	"context"
	"time"

	"concierge_backend/internal/events"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/internal/leadscores/handler"
	"concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/leadscores/service"
	"concierge_backend/internal/leadscores/signals"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"
)

const beaconEvictInterval = time.Minute

// Module is the lead scores bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	service  *service.Service
	registry *signals.Registry
	repo     repository.Store
}

// NewModule wires the lead score stack on top of repo.
func NewModule(repo repository.Store, bus events.Bus, val *validator.Validator, cfg config.LeadScoreConfig, log *logger.Logger, opts ...service.Option) (*Module, error) {
	if err := transport.RegisterValidations(val); err != nil {
		return nil, err
	}

	registry := signals.NewRegistry(cfg.GetBeaconSessionTTL())
	opts = append([]service.Option{service.WithSyncTimeout(cfg.GetLeadScoreSyncTimeout())}, opts...)
	svc := service.New(repo, registry, bus, log, opts...)

	return &Module{
		handler:  handler.New(svc, val),
		service:  svc,
		registry: registry,
		repo:     repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leadscores"
}

// Service returns the service layer for the scheduler and other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the store backing the module.
func (m *Module) Repository() repository.Store {
	return m.repo
}

// RunBeaconEviction drops idle server-held signal stores until ctx is done.
func (m *Module) RunBeaconEviction(ctx context.Context) {
	m.registry.Run(ctx, beaconEvictInterval)
}

// RegisterRoutes mounts the visitor endpoints on the rate limited public group
// and the review endpoints on the admin group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterPublicRoutes(ctx.Public.Group("/lead-scores"))
	m.handler.RegisterAdminRoutes(ctx.Admin)
}
