package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/session"
)

// SessionHandler stores the AgroSense credentials used for API calls.
type SessionHandler struct {
	auth   session.AuthContext
	logger *zap.Logger
}

// NewSessionHandler constructs the HTTP handler adapter.
func NewSessionHandler(auth session.AuthContext, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{auth: auth, logger: logger}
}

// SignIn replaces the stored token and role.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req models.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid session payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role := strings.TrimSpace(req.Role)
	if err := h.auth.SetSession(c.Request.Context(), strings.TrimSpace(req.Token), role); err != nil {
		h.logger.Error("failed storing session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to store session"})
		return
	}

	h.logger.Info("session stored", zap.String("role", role))
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "role": role})
}

// Show reports whether a session is stored. The token is never returned.
func (h *SessionHandler) Show(c *gin.Context) {
	ctx := c.Request.Context()
	token, err := h.auth.Token(ctx)
	if err != nil {
		h.logger.Error("failed reading session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to read session"})
		return
	}
	role, err := h.auth.Role(ctx)
	if err != nil {
		h.logger.Error("failed reading session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to read session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": token != "", "role": role})
}

// SignOut clears the stored session.
func (h *SessionHandler) SignOut(c *gin.Context) {
	if err := h.auth.ClearSession(c.Request.Context()); err != nil {
		h.logger.Error("failed clearing session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to clear session"})
		return
	}
	c.Status(http.StatusNoContent)
}
