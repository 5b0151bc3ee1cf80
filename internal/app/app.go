package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/automation"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/events"
	"github.com/ternarybob/nuntio/internal/handlers"
	"github.com/ternarybob/nuntio/internal/interfaces"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/pipeline"
	"github.com/ternarybob/nuntio/internal/queue"
	"github.com/ternarybob/nuntio/internal/scheduler"
	"github.com/ternarybob/nuntio/internal/server"
	"github.com/ternarybob/nuntio/internal/services/llm"
	"github.com/ternarybob/nuntio/internal/services/rss"
	badgerstore "github.com/ternarybob/nuntio/internal/storage/badger"
)

// App is the composition root. It owns every service and wires them
// together; nothing here is a singleton.
type App struct {
	Config      *common.Config
	Logger      arbor.ILogger
	Storage     interfaces.StorageManager
	Events      interfaces.EventService
	Queue       *queue.Service
	Scheduler   *scheduler.Service
	Coordinator *automation.Coordinator
	Generation  interfaces.GenerationService
	Server      *server.Server
}

// New builds the application graph from configuration
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventService := events.NewService(logger)

	policies := queue.PoliciesFromConfig(config)
	queueService := queue.NewService(config.Queue.MaxConcurrentJobs, policies, eventService, logger)

	schedulerService := scheduler.NewService(config.Scheduler, config.Cleanup, eventService, storage.ArticleStorage(), logger)

	generation, err := llm.NewGenerationService(config, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize generation service: %w", err)
	}

	articleRetries := config.RetryConfigFor(string(models.JobKindAIProcessing)).MaxRetries
	fetcher, err := rss.NewService(config.RSS, articleRetries, storage.ArticleStorage(), logger)
	if err != nil {
		generation.Close()
		storage.Close()
		return nil, fmt.Errorf("failed to initialize rss service: %w", err)
	}

	processor := pipeline.NewProcessor(storage.ArticleStorage(), generation, policies.For(models.JobKindAIProcessing), logger)

	jobHandlers := automation.NewHandlers(fetcher, processor, storage, generation, logger)
	jobHandlers.Register(queueService)

	coordinator, err := automation.NewCoordinator(config, queueService, schedulerService, eventService, storage, logger)
	if err != nil {
		generation.Close()
		storage.Close()
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	automationHandler := handlers.NewAutomationHandler(coordinator, queueService, logger)
	apiHandler := handlers.NewAPIHandler(storage, logger)

	var wsHandler *handlers.WebSocketHandler
	if config.WebSocket.Enabled {
		wsHandler, err = handlers.NewWebSocketHandler(eventService, logger)
		if err != nil {
			generation.Close()
			storage.Close()
			return nil, fmt.Errorf("failed to initialize websocket handler: %w", err)
		}
	}

	httpServer := server.New(config, automationHandler, apiHandler, wsHandler, logger)

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     storage,
		Events:      eventService,
		Queue:       queueService,
		Scheduler:   schedulerService,
		Coordinator: coordinator,
		Generation:  generation,
		Server:      httpServer,
	}, nil
}

// Close releases every service in reverse dependency order
func (a *App) Close() {
	if a.Coordinator != nil {
		// Best effort; ErrNotRunning is fine here
		_ = a.Coordinator.Stop(interfaces.StopOptions{Graceful: true})
	}
	if a.Generation != nil {
		if err := a.Generation.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close generation service")
		}
	}
	if a.Events != nil {
		_ = a.Events.Close()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
