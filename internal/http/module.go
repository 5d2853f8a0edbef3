package http

import (
	"concierge_backend/platform/config"
	"concierge_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is a feature that owns a set of routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands modules the groups they mount on.
type RouterContext struct {
	Engine *gin.Engine
	V1     *gin.RouterGroup
	// Public is /api/v1 with the per-IP signal rate limit. Visitors call it
	// without credentials.
	Public *gin.RouterGroup
	// Admin is /api/v1/admin behind AuthRequired and the admin role.
	Admin  *gin.RouterGroup
	Config config.JWTConfig
	Log    *logger.Logger
}
