// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"net/http"
	"time"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/domain/entities/pipeline"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/types"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// PipelineHandlers contains the pipeline board HTTP handlers
type PipelineHandlers struct {
	pipelineService *services.PipelineService
	cacheManager    *manager.Manager
	logger          *logging.ChanneledLogger
}

// NewPipelineHandlers creates pipeline handlers with injected dependencies
func NewPipelineHandlers(pipelineService *services.PipelineService, cacheManager *manager.Manager, logger *logging.ChanneledLogger) *PipelineHandlers {
	return &PipelineHandlers{
		pipelineService: pipelineService,
		cacheManager:    cacheManager,
		logger:          logger,
	}
}

// GetState handles GET /api/v1/pipeline/state
func (h *PipelineHandlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipelineService.State())
}

// ActivateRequest selects the stage to fetch. Empty means resolve the
// default.
type ActivateRequest struct {
	Stage string `json:"stage"`
}

// PostActivate handles POST /api/v1/pipeline/activate - starts a fetch run
func (h *PipelineHandlers) PostActivate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.pipelineService.Activate(c.Request.Context(), req.Stage)
	c.JSON(http.StatusAccepted, h.pipelineService.State())
}

// PostRefresh handles POST /api/v1/pipeline/refresh - clears the stage's
// cached collections, failed markers included, and refetches
func (h *PipelineHandlers) PostRefresh(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.pipelineService.Refresh(c.Request.Context(), req.Stage)
	c.JSON(http.StatusAccepted, h.pipelineService.State())
}

// GetStages handles GET /api/v1/pipeline/stages
func (h *PipelineHandlers) GetStages(c *gin.Context) {
	stages, state := h.cacheManager.Collections.Stages()
	c.JSON(http.StatusOK, gin.H{
		"stages": stages,
		"state":  state,
	})
}

// GetDeals handles GET /api/v1/pipeline/deals?stage=<name>
func (h *PipelineHandlers) GetDeals(c *gin.Context) {
	stage := c.Query("stage")
	if stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage parameter required"})
		return
	}

	deals, state := h.cacheManager.Collections.Deals(stage)
	c.JSON(http.StatusOK, gin.H{
		"stage": stage,
		"deals": deals,
		"state": state,
	})
}

// derivedView bundles one derived map with its collection state.
type derivedView struct {
	State types.CollectionState `json:"state"`
	Data  any                   `json:"data"`
}

// GetDerived handles GET /api/v1/pipeline/derived?stage=<name>
func (h *PipelineHandlers) GetDerived(c *gin.Context) {
	stage := c.Query("stage")
	if stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage parameter required"})
		return
	}

	insights, insightState := h.cacheManager.Collections.Insights(stage)
	activity, activityState := h.cacheManager.Collections.Activity(stage)
	signals, signalState := h.cacheManager.Collections.Signals(stage)

	c.JSON(http.StatusOK, gin.H{
		"stage":          stage,
		"insights":       derivedView{State: insightState, Data: insights},
		"activityCounts": derivedView{State: activityState, Data: activity},
		"signals":        derivedView{State: signalState, Data: signals},
	})
}

// GetBoard handles GET /api/v1/pipeline/board - the full dashboard view in
// one response: pipeline state, stages, the active stage's deals and all
// three derived maps with their states
func (h *PipelineHandlers) GetBoard(c *gin.Context) {
	start := time.Now()
	state := h.pipelineService.State()

	stage := c.Query("stage")
	if stage == "" {
		stage = state.ActiveStage
	}

	stages, stagesState := h.cacheManager.Collections.Stages()

	var deals []pipeline.Deal
	dealsState := types.StateAbsent
	var insights derivedView
	var activity derivedView
	var signals derivedView

	if stage != "" {
		deals, dealsState = h.cacheManager.Collections.Deals(stage)

		insightData, insightState := h.cacheManager.Collections.Insights(stage)
		activityData, activityState := h.cacheManager.Collections.Activity(stage)
		signalData, signalState := h.cacheManager.Collections.Signals(stage)
		insights = derivedView{State: insightState, Data: insightData}
		activity = derivedView{State: activityState, Data: activityData}
		signals = derivedView{State: signalState, Data: signalData}
	}

	if h.logger != nil {
		h.logger.Perf().Debug("Board view assembled", "stage", stage, "deals", len(deals), "duration", time.Since(start))
	}

	c.JSON(http.StatusOK, gin.H{
		"pipeline":       state,
		"activeStage":    stage,
		"stages":         gin.H{"state": stagesState, "data": stages},
		"deals":          gin.H{"state": dealsState, "data": deals},
		"insights":       insights,
		"activityCounts": activity,
		"signals":        signals,
	})
}
