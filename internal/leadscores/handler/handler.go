package handler

import (
	"fmt"
	"net/http"
	"time"

	"concierge_backend/internal/leadscores/service"
	"concierge_backend/internal/leadscores/transport"
	"concierge_backend/platform/apperr"
	"concierge_backend/platform/httpkit"
	"concierge_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidAlertID   = "invalid alert id"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterPublicRoutes mounts the visitor-facing endpoints under /lead-scores.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.Sync)
	rg.POST("/events", h.RecordEvents)
	rg.POST("/:sessionId/orla-engaged", h.MarkOrlaEngaged)
}

// RegisterAdminRoutes mounts review endpoints on an admin-only group.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	alerts := rg.Group("/vip-alerts")
	alerts.GET("", h.ListAlerts)
	alerts.GET("/stats", h.GetStats)
	alerts.GET("/export", h.ExportAlerts)
	alerts.GET("/:id", h.GetAlert)
	alerts.PATCH("/:id/status", h.UpdateAlertStatus)

	scores := rg.Group("/lead-scores")
	scores.GET("", h.ListLeadScores)
	scores.GET("/:sessionId", h.GetLeadScore)
}

func (h *Handler) Sync(c *gin.Context) {
	var req transport.SyncRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.Sync(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) RecordEvents(c *gin.Context) {
	var req transport.EventsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.RecordEvents(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) MarkOrlaEngaged(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.val.Var(sessionID, "required,min=8,max=128"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	resp, err := h.svc.MarkOrlaEngaged(c.Request.Context(), sessionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	var req transport.ListAlertsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.svc.ListAlerts(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetStats(c *gin.Context) {
	resp, err := h.svc.GetStats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAlertID, nil)
		return
	}

	resp, err := h.svc.GetAlert(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidAlertID, nil)
		return
	}

	var req transport.UpdateAlertStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.svc.UpdateAlertStatus(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ExportAlerts(c *gin.Context) {
	var req transport.ListAlertsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	filename := fmt.Sprintf("vip-alerts-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := h.svc.ExportAlertsCSV(c.Request.Context(), c.Writer, req); err != nil {
		// Headers are already sent; record the failure for the request logger.
		_ = c.Error(err)
	}
}

func (h *Handler) ListLeadScores(c *gin.Context) {
	var req transport.ListLeadScoresRequest
	if !h.bindQuery(c, &req) {
		return
	}

	resp, err := h.svc.ListLeadScores(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetLeadScore(c *gin.Context) {
	resp, err := h.svc.GetLeadScore(c.Request.Context(), c.Param("sessionId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.Fields(err)))
		return false
	}
	return true
}
