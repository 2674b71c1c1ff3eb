package handlers

import (
	"log/slog"
	"net/http"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AdminHandlers contains the operator admin HTTP handlers
type AdminHandlers struct {
	authService     *services.AuthService
	identityService *services.IdentityService
	cacheManager    *manager.Manager
	logger          *logging.ChanneledLogger
}

// NewAdminHandlers creates admin handlers with injected dependencies
func NewAdminHandlers(authService *services.AuthService, identityService *services.IdentityService, cacheManager *manager.Manager, logger *logging.ChanneledLogger) *AdminHandlers {
	return &AdminHandlers{
		authService:     authService,
		identityService: identityService,
		cacheManager:    cacheManager,
		logger:          logger,
	}
}

// LoginRequest carries the operator password.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// PostLogin handles POST /api/v1/auth/login
func (h *AdminHandlers) PostLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result := h.authService.AuthenticateOperator(req.Password)
	if !result.Success {
		c.JSON(http.StatusUnauthorized, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetIdentity handles GET /api/v1/admin/identity
func (h *AdminHandlers) GetIdentity(c *gin.Context) {
	c.JSON(http.StatusOK, h.identityService.Snapshot())
}

// PostSessionReset handles POST /api/v1/admin/session/reset - mints a fresh
// session id
func (h *AdminHandlers) PostSessionReset(c *gin.Context) {
	sessionID := h.identityService.ResetSession()
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
}

// GetCacheStatus handles GET /api/v1/admin/cache/status - per-collection
// state, fetch times and the parked failed set
func (h *AdminHandlers) GetCacheStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cacheManager.GetStatus())
}

// PostCachePurge handles POST /api/v1/admin/cache/purge - drops the
// persisted derived maps for every stage
func (h *AdminHandlers) PostCachePurge(c *gin.Context) {
	h.cacheManager.PurgeDerived()
	c.JSON(http.StatusOK, gin.H{"purged": true})
}

// GetLogLevels handles GET /api/v1/admin/logs/levels
func (h *AdminHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevelRequest adjusts one channel's log level.
type SetLogLevelRequest struct {
	Channel string `json:"channel" binding:"required"`
	Level   string `json:"level" binding:"required"`
}

// PostLogLevel handles POST /api/v1/admin/logs/levels
func (h *AdminHandlers) PostLogLevel(c *gin.Context) {
	var req SetLogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": req.Level})
}
