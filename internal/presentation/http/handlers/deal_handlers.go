package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// DealHandlers contains the deal-detail panel HTTP handlers
type DealHandlers struct {
	dealService *services.DealService
	logger      *logging.ChanneledLogger
}

// NewDealHandlers creates deal handlers with injected dependencies
func NewDealHandlers(dealService *services.DealService, logger *logging.ChanneledLogger) *DealHandlers {
	return &DealHandlers{dealService: dealService, logger: logger}
}

// writePassthrough maps a passthrough result onto the response. Superseded
// requests answer 200 with no data (a newer request's data is already on the
// way); timeouts keep their own status so the frontend can show retry copy
// distinct from a generic server failure; everything else in the error
// taxonomy surfaces generically.
func writePassthrough(c *gin.Context, payload json.RawMessage, err error) {
	if err == nil {
		c.Data(http.StatusOK, "application/json", payload)
		return
	}

	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		switch {
		case upstream.Superseded():
			c.JSON(http.StatusOK, gin.H{"superseded": true})
		case upstream.Retryable():
			status := http.StatusBadGateway
			if upstream.Kind == gateway.OutcomeTimeout {
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"error": "upstream unavailable", "retryable": true})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "request failed"})
		}
		return
	}

	c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unreachable", "retryable": true})
}

func requireDealParam(c *gin.Context) (string, bool) {
	deal := c.Query("deal")
	if deal == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deal parameter required"})
		return "", false
	}
	return deal, true
}

// GetTimeline handles GET /api/v1/deals/timeline?deal=<name>
func (h *DealHandlers) GetTimeline(c *gin.Context) {
	deal, ok := requireDealParam(c)
	if !ok {
		return
	}
	payload, err := h.dealService.Timeline(c.Request.Context(), deal)
	writePassthrough(c, payload, err)
}

// GetInfo handles GET /api/v1/deals/info?deal=<name>
func (h *DealHandlers) GetInfo(c *gin.Context) {
	deal, ok := requireDealParam(c)
	if !ok {
		return
	}
	payload, err := h.dealService.Info(c.Request.Context(), deal)
	writePassthrough(c, payload, err)
}

// GetContacts handles GET /api/v1/deals/contacts?deal=<name>
func (h *DealHandlers) GetContacts(c *gin.Context) {
	deal, ok := requireDealParam(c)
	if !ok {
		return
	}
	payload, err := h.dealService.Contacts(c.Request.Context(), deal)
	writePassthrough(c, payload, err)
}

// GetConcerns handles GET /api/v1/deals/concerns?deal=<name>
func (h *DealHandlers) GetConcerns(c *gin.Context) {
	deal, ok := requireDealParam(c)
	if !ok {
		return
	}
	payload, err := h.dealService.Concerns(c.Request.Context(), deal)
	writePassthrough(c, payload, err)
}

// GetEventContent handles GET /api/v1/deals/events?deal=<name>&event=<id>
func (h *DealHandlers) GetEventContent(c *gin.Context) {
	deal, ok := requireDealParam(c)
	if !ok {
		return
	}
	eventID := c.Query("event")
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event parameter required"})
		return
	}
	payload, err := h.dealService.EventContent(c.Request.Context(), deal, eventID)
	writePassthrough(c, payload, err)
}

// GetCompanyOverview handles GET /api/v1/company/overview?company=<name>
func (h *DealHandlers) GetCompanyOverview(c *gin.Context) {
	company := c.Query("company")
	if company == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company parameter required"})
		return
	}
	payload, err := h.dealService.CompanyOverview(c.Request.Context(), company)
	writePassthrough(c, payload, err)
}

// GetPipelineSummary handles GET /api/v1/pipeline/summary
func (h *DealHandlers) GetPipelineSummary(c *gin.Context) {
	payload, err := h.dealService.PipelineSummary(c.Request.Context())
	writePassthrough(c, payload, err)
}

// PostCustomerQA handles POST /api/v1/customer-qa
func (h *DealHandlers) PostCustomerQA(c *gin.Context) {
	var req services.CustomerQARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	payload, err := h.dealService.CustomerQA(c.Request.Context(), req)
	writePassthrough(c, payload, err)
}
