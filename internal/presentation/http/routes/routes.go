// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/RevLensAI/revlens-go/internal/application/container"
	"github.com/RevLensAI/revlens-go/internal/presentation/http/handlers"
	"github.com/RevLensAI/revlens-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(c *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.IdentityMiddleware(c.IdentityService))

	// Initialize handlers
	pipelineHandlers := handlers.NewPipelineHandlers(c.PipelineService, c.CacheManager, c.Logger)
	ownerHandlers := handlers.NewOwnerHandlers(c.OwnerService, c.Logger)
	chatHandlers := handlers.NewChatHandlers(c.ChatService, c.Logger)
	dealHandlers := handlers.NewDealHandlers(c.DealService, c.Logger)
	adminHandlers := handlers.NewAdminHandlers(c.AuthService, c.IdentityService, c.CacheManager, c.Logger)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		pipelineAPI := api.Group("/pipeline")
		{
			pipelineAPI.GET("/state", pipelineHandlers.GetState)
			pipelineAPI.POST("/activate", pipelineHandlers.PostActivate)
			pipelineAPI.POST("/refresh", pipelineHandlers.PostRefresh)
			pipelineAPI.GET("/stages", pipelineHandlers.GetStages)
			pipelineAPI.GET("/deals", pipelineHandlers.GetDeals)
			pipelineAPI.GET("/derived", pipelineHandlers.GetDerived)
			pipelineAPI.GET("/board", pipelineHandlers.GetBoard)
			pipelineAPI.GET("/summary", dealHandlers.GetPipelineSummary)
		}

		dealsAPI := api.Group("/deals")
		{
			dealsAPI.GET("/timeline", dealHandlers.GetTimeline)
			dealsAPI.GET("/info", dealHandlers.GetInfo)
			dealsAPI.GET("/contacts", dealHandlers.GetContacts)
			dealsAPI.GET("/concerns", dealHandlers.GetConcerns)
			dealsAPI.GET("/events", dealHandlers.GetEventContent)
		}

		api.GET("/company/overview", dealHandlers.GetCompanyOverview)
		api.POST("/customer-qa", dealHandlers.PostCustomerQA)

		api.GET("/owners/performance", ownerHandlers.GetPerformance)
		api.GET("/health-scores", ownerHandlers.GetHealthScores)

		api.POST("/chat", chatHandlers.PostChat)
		api.POST("/chat/transcript", chatHandlers.PostTranscriptQA)

		api.POST("/auth/login", adminHandlers.PostLogin)

		adminAPI := api.Group("/admin")
		adminAPI.Use(middleware.OperatorAuthMiddleware(c.AuthService))
		{
			adminAPI.GET("/identity", adminHandlers.GetIdentity)
			adminAPI.POST("/session/reset", adminHandlers.PostSessionReset)
			adminAPI.GET("/cache/status", adminHandlers.GetCacheStatus)
			adminAPI.POST("/cache/purge", adminHandlers.PostCachePurge)
			adminAPI.GET("/logs/levels", adminHandlers.GetLogLevels)
			adminAPI.POST("/logs/levels", adminHandlers.PostLogLevel)
		}
	}

	return r
}
