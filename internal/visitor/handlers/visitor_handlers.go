package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/architect/presence-engine/internal/common/errors"
	"github.com/architect/presence-engine/internal/common/middleware"
	"github.com/architect/presence-engine/internal/visitor/models"
	"github.com/architect/presence-engine/internal/visitor/services"
)

// PresenceHandler exposes the visitor engine over HTTP. The engine itself
// never fails a request; every endpoint answers with a snapshot.
type PresenceHandler struct {
	service *services.VisitorService
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(service *services.VisitorService) *PresenceHandler {
	return &PresenceHandler{service: service}
}

// RegisterVisit records a visit
// POST /api/v1/presence/visits
func (h *PresenceHandler) RegisterVisit(c *gin.Context) {
	var req models.RegisterVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		middleware.JSONErrorResponse(c, errors.BadRequest("invalid request body"))
		return
	}

	clientKey := req.ClientKey
	if clientKey == "" {
		clientKey = c.ClientIP()
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	snapshot := h.service.RegisterVisit(c.Request.Context(), clientKey, userAgent)
	c.JSON(http.StatusOK, snapshot)
}

// MarkOnline marks a client online
// POST /api/v1/presence/online
func (h *PresenceHandler) MarkOnline(c *gin.Context) {
	snapshot := h.service.MarkOnline(c.Request.Context(), h.clientKey(c))
	c.JSON(http.StatusOK, snapshot)
}

// MarkOffline marks a client offline
// POST /api/v1/presence/offline
func (h *PresenceHandler) MarkOffline(c *gin.Context) {
	snapshot := h.service.MarkOffline(c.Request.Context(), h.clientKey(c))
	c.JSON(http.StatusOK, snapshot)
}

// GetSnapshot returns the aggregate dashboard counts
// GET /api/v1/presence/snapshot
func (h *PresenceHandler) GetSnapshot(c *gin.Context) {
	snapshot := h.service.Snapshot(c.Request.Context())
	c.JSON(http.StatusOK, snapshot)
}

func (h *PresenceHandler) clientKey(c *gin.Context) string {
	var req models.MarkRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.ClientKey != "" {
		return req.ClientKey
	}
	return c.ClientIP()
}
