// Package app initializes and orchestrates the main components of the
// CodeSentry application. It wires together the configuration, database,
// worker pool, and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codesentry/codesentry/internal/analyzer"
	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/db"
	"github.com/codesentry/codesentry/internal/gh"
	"github.com/codesentry/codesentry/internal/jobs"
	"github.com/codesentry/codesentry/internal/server"
	"github.com/codesentry/codesentry/internal/storage"
)

// App holds the main application components.
type App struct {
	ctx        context.Context
	cfg        *config.Config
	server     *server.Server
	logger     *slog.Logger
	dispatcher *jobs.Dispatcher
	dbCleanup  func()
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing CodeSentry application",
		"server_port", cfg.ServerPort,
		"max_workers", cfg.MaxWorkers)

	dbConn, dbCleanup, err := db.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := storage.NewStore(dbConn.DB)

	ruleset, err := config.LoadRuleset(cfg.RulesetPath)
	if err != nil {
		if !errors.Is(err, config.ErrRulesetNotFound) {
			dbCleanup()
			return nil, fmt.Errorf("failed to load ruleset: %w", err)
		}
		logger.Info("no ruleset file found, using built-in rules", "path", cfg.RulesetPath)
	}

	fileAnalyzer := analyzer.New(ruleset)
	clients := gh.NewClientFactory(cfg.GitHub, logger)
	lifecycle := jobs.NewLifecycle(store, clients, fileAnalyzer, logger)
	dispatcher := jobs.NewDispatcher(lifecycle, cfg.MaxWorkers, logger)
	httpServer := server.NewServer(ctx, cfg, dispatcher, store, logger)

	logger.Info("CodeSentry application initialized successfully")
	return &App{
		ctx:        ctx,
		cfg:        cfg,
		server:     httpServer,
		logger:     logger,
		dispatcher: dispatcher,
		dbCleanup:  dbCleanup,
	}, nil
}

// Start runs the HTTP server.
func (a *App) Start() error {
	a.logger.Info("starting CodeSentry",
		"server_port", a.cfg.ServerPort,
		"max_workers", a.cfg.MaxWorkers)

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down CodeSentry services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the job dispatcher, allowing in-flight jobs to finish.
	a.dispatcher.Stop()

	a.logger.Info("closing database connection")
	a.dbCleanup()

	if serverErr != nil {
		a.logger.Error("CodeSentry stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("CodeSentry stopped successfully")
	return nil
}
