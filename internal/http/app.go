// Package http wires feature modules into one gin engine. main builds an App;
// router.New turns it into an engine.
package http

import (
	"context"

	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// Pinger backs the readiness probe, usually the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is pinged by /api/ready. Nil means always ready.
	Health  Pinger
	Modules []Module
}
