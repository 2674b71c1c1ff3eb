// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RevLensAI/revlens-go/internal/application/container"
	"github.com/RevLensAI/revlens-go/internal/presentation/http/server"
	"github.com/RevLensAI/revlens-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Create dependency injection container
	log.Println("Initializing RevLens...")
	appContainer, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")
	logger.Startup().Info("Identity ready",
		"browserId", appContainer.IdentityService.BrowserID(),
		"durableStore", appContainer.LocalStore.Durable())

	// Step 2: Warm the pipeline from persisted state. The last viewed stage
	// gets its derived maps hydrated so the first paint shows data
	// immediately, stale or not.
	if lastStage := appContainer.PipelineService.LastViewedStage(); lastStage != "" {
		logger.Startup().Info("Hydrating persisted derived maps", "stage", lastStage)
		appContainer.CacheManager.HydrateStage(lastStage)
	}

	// Step 3: Kick off the initial pipeline run in the background
	logger.Startup().Info("Starting initial pipeline run...")
	appContainer.PipelineService.Activate(ctx, "")

	// Step 4: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	startServerTime := time.Now()

	httpServer := server.New(config.Port, appContainer)
	logger.Startup().Info("HTTP server initialized", "port", config.Port, "duration", time.Since(startServerTime))

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel the pipeline run and any staggered derived fetches
	cancelBackgroundTasks()
	appContainer.PipelineService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Closing local store...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
