package handlers

import (
	"net/http"
	"time"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// ChatHandlers contains the deal chat HTTP handlers
type ChatHandlers struct {
	chatService *services.ChatService
	logger      *logging.ChanneledLogger
}

// NewChatHandlers creates chat handlers with injected dependencies
func NewChatHandlers(chatService *services.ChatService, logger *logging.ChanneledLogger) *ChatHandlers {
	return &ChatHandlers{chatService: chatService, logger: logger}
}

// PostChat handles POST /api/v1/chat - asks a question about the pipeline
func (h *ChatHandlers) PostChat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	start := time.Now()
	answer, err := h.chatService.Ask(c.Request.Context(), req)
	if err != nil {
		h.logger.Chat().Warn("Chat request failed", "error", err.Error(), "duration", time.Since(start))
		c.JSON(http.StatusBadGateway, gin.H{"error": "chat unavailable"})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// TranscriptQARequest asks a question against a deal's call transcript.
type TranscriptQARequest struct {
	DealName string `json:"dealName" binding:"required"`
	Question string `json:"question" binding:"required"`
}

// PostTranscriptQA handles POST /api/v1/chat/transcript - answers a question
// from the deal's call transcript
func (h *ChatHandlers) PostTranscriptQA(c *gin.Context) {
	var req TranscriptQARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	answer, err := h.chatService.AskTranscript(c.Request.Context(), req.DealName, req.Question)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}
