// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/RevLensAI/revlens-go/internal/application/services"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/caching/manager"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/gateway"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/observability/logging"
	"github.com/RevLensAI/revlens-go/internal/infrastructure/persistence/localstore"
	"github.com/RevLensAI/revlens-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services (singletons)
	IdentityService *services.IdentityService
	PipelineService *services.PipelineService
	DerivedService  *services.DerivedService
	OwnerService    *services.OwnerService
	DealService     *services.DealService
	ChatService     *services.ChatService
	AuthService     *services.AuthService

	// Infrastructure dependencies
	Logger       *logging.ChanneledLogger
	LocalStore   *localstore.Store
	Gateway      *gateway.Client
	CacheManager *manager.Manager
}

// NewContainer creates and wires all singleton services
func NewContainer() (*Container, error) {
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	localStore := localstore.New(config.LocalStorePath, logger)
	identityService := services.NewIdentityService(localStore, logger)
	gatewayClient := gateway.NewClient(config.UpstreamBaseURL, config.UpstreamHTTPTimeout, identityService, logger)
	cacheManager := manager.NewManager(localStore, logger)

	derivedService := services.NewDerivedService(gatewayClient, cacheManager, logger)
	pipelineService := services.NewPipelineService(gatewayClient, cacheManager, derivedService, localStore, logger)

	return &Container{
		IdentityService: identityService,
		PipelineService: pipelineService,
		DerivedService:  derivedService,
		OwnerService:    services.NewOwnerService(gatewayClient, cacheManager, logger),
		DealService:     services.NewDealService(gatewayClient, logger),
		ChatService:     services.NewChatService(gatewayClient, logger),
		AuthService:     services.NewAuthService(logger),

		Logger:       logger,
		LocalStore:   localStore,
		Gateway:      gatewayClient,
		CacheManager: cacheManager,
	}, nil
}

// Close releases held resources.
func (c *Container) Close() error {
	if err := c.LocalStore.Close(); err != nil {
		return err
	}
	return c.Logger.Close()
}
