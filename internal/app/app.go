// Package app wires configuration, storage, the research pipeline, and the
// job engine into a running application.
package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/engine"
	"github.com/ternarybob/prospector/internal/handlers"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/notify"
	"github.com/ternarybob/prospector/internal/research"
	"github.com/ternarybob/prospector/internal/services/llm"
	"github.com/ternarybob/prospector/internal/services/poller"
	"github.com/ternarybob/prospector/internal/storage"
	"github.com/ternarybob/prospector/internal/workflow"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Research pipeline
	Pipeline   interfaces.ResearchPipeline
	LLMService interfaces.LLMService

	// Job engine
	Processor *engine.Processor
	Notifier  interfaces.CompletionNotifier
	Poller    *poller.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	JobHandler      *handlers.JobHandler
	VariableHandler *handlers.VariableHandler
}

// New constructs the application from configuration.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storageManager, err := storage.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	// LLM is optional; the pipeline degrades to findings-only summaries
	if config.LLM.Enabled {
		llmService, err := llm.NewLLMService(config, "", logger)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
		}
		a.LLMService = llmService
	}

	a.Pipeline = buildPipeline(config, storageManager, a.LLMService, logger)

	a.Notifier = notify.New(
		config.Notify.WebhookURL,
		parseDurationOr(config.Notify.Timeout, 10*time.Second),
		logger,
	)

	a.Processor = buildProcessor(config, storageManager, a.Pipeline, a.Notifier, logger)

	a.Poller = poller.NewService(a.Processor, storageManager.JobStorage(), config.Poller, logger)

	a.APIHandler = handlers.NewAPIHandler(logger)
	a.JobHandler = handlers.NewJobHandler(
		storageManager.JobStorage(),
		storageManager.ItemStorage(),
		a.Processor,
		logger,
	)
	a.VariableHandler = handlers.NewVariableHandler(storageManager.KeyValueStorage(), logger)

	return a, nil
}

// buildPipeline assembles the research sources behind the pipeline interface.
func buildPipeline(config *common.Config, storageManager *storage.Manager, llmService interfaces.LLMService, logger arbor.ILogger) interfaces.ResearchPipeline {
	rc := config.Research

	client := httpclient.New(
		parseDurationOr(rc.RequestTimeout, 30*time.Second),
		rc.RatePerSecond,
		rc.UserAgent,
	)

	cache := research.NewSourceCache(
		storageManager.BadgerStore(),
		parseDurationOr(rc.CacheTTL, 24*time.Hour),
		logger,
	)

	sources := []research.Source{
		research.NewEdgarSource(client, cache, rc.EdgarBaseURL, logger),
		research.NewProPublicaSource(client, cache, rc.ProPublicaBaseURL, logger),
		research.NewFECSource(client, cache, rc.FECBaseURL, rc.FECAPIKey, logger),
	}

	return research.NewService(sources, llmService, logger)
}

// buildProcessor assembles the execution strategies and the job engine.
func buildProcessor(config *common.Config, storageManager *storage.Manager, pipeline interfaces.ResearchPipeline, notifier interfaces.CompletionNotifier, logger arbor.ILogger) *engine.Processor {
	inline := engine.NewInlineStrategy(pipeline)

	var durable engine.ExecutionStrategy
	if config.Workflow.Enabled && config.Workflow.Endpoint != "" {
		workflowClient := workflow.NewClient(
			config.Workflow.Endpoint,
			parseDurationOr(config.Workflow.Timeout, 2*time.Minute),
			logger,
		)
		// The durable path falls back to inline when the workflow service
		// is unreachable
		durable = engine.NewFallbackStrategy(
			engine.NewWorkflowStrategy(workflowClient, "prospect-research"),
			inline,
			logger,
		)
	}

	selector := engine.NewStrategySelector(inline, durable, config.Workflow.Users)

	return engine.NewProcessor(
		storageManager.JobStorage(),
		storageManager.ItemStorage(),
		storageManager.KeyValueStorage(),
		selector,
		notifier,
		config.Engine,
		logger,
	)
}

// Start launches background services.
func (a *App) Start() error {
	return a.Poller.Start()
}

// Shutdown releases all resources.
func (a *App) Shutdown() error {
	a.Poller.Stop()

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
