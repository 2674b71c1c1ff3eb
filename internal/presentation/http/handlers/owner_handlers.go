package handlers

import (
	"net/http"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// OwnerHandlers contains the owner analytics HTTP handlers
type OwnerHandlers struct {
	ownerService *services.OwnerService
	logger       *logging.ChanneledLogger
}

// NewOwnerHandlers creates owner handlers with injected dependencies
func NewOwnerHandlers(ownerService *services.OwnerService, logger *logging.ChanneledLogger) *OwnerHandlers {
	return &OwnerHandlers{ownerService: ownerService, logger: logger}
}

// GetPerformance handles GET /api/v1/owners/performance
func (h *OwnerHandlers) GetPerformance(c *gin.Context) {
	summaries, err := h.ownerService.Performance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "owner performance unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owners": summaries})
}

// GetHealthScores handles GET /api/v1/health-scores
func (h *OwnerHandlers) GetHealthScores(c *gin.Context) {
	scores, err := h.ownerService.HealthScores(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "health scores unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}
