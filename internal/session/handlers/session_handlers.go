package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/architect/presence-engine/internal/common/errors"
	"github.com/architect/presence-engine/internal/common/middleware"
	"github.com/architect/presence-engine/internal/session/models"
	"github.com/architect/presence-engine/internal/session/services"
)

// SessionHandler exposes the session liveness counter over HTTP.
type SessionHandler struct {
	service *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Issue hands out (or re-registers) a session token
// POST /api/v1/sessions
func (h *SessionHandler) Issue(c *gin.Context) {
	var req models.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		middleware.JSONErrorResponse(c, errors.BadRequest("invalid request body"))
		return
	}

	token := h.service.IssueToken(c.Request.Context(), req.Token, req.OwnerID)
	c.JSON(http.StatusOK, models.IssueResponse{Token: token})
}

// Ping keeps a session alive
// POST /api/v1/sessions/ping
func (h *SessionHandler) Ping(c *gin.Context) {
	var req models.PingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.JSONErrorResponse(c, errors.BadRequest("token is required"))
		return
	}

	active := h.service.Ping(c.Request.Context(), req.Token, req.OwnerID)
	c.JSON(http.StatusOK, models.PingResponse{Active: active})
}

// End terminates a session immediately
// DELETE /api/v1/sessions/:token
func (h *SessionHandler) End(c *gin.Context) {
	removed := h.service.EndSession(c.Request.Context(), c.Param("token"))
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Active returns the live session counter
// GET /api/v1/sessions/active
func (h *SessionHandler) Active(c *gin.Context) {
	count := h.service.ActiveCount(c.Request.Context())
	c.JSON(http.StatusOK, count)
}
