package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmercadier/binger/internal/api"
	"github.com/lmercadier/binger/internal/config"
	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
	"github.com/lmercadier/binger/internal/scheduler"
	"github.com/lmercadier/binger/internal/services/resolver"
	"github.com/lmercadier/binger/internal/services/subtitles"
	"github.com/lmercadier/binger/internal/services/telemetry"
	"github.com/lmercadier/binger/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Binger")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize services
	resolverClient, err := resolver.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize resolver client: %w", err)
	}
	logger.Info("Resolver client initialized")

	subtitleClient := subtitles.NewClient(cfg, logger)
	telemetryClient := telemetry.NewClient(cfg, logger)

	// 5. Initialize the session manager. Each session gets a bridge
	// player the frontend drives over the websocket endpoint.
	manager := controllers.NewManager(cfg, resolverClient, subtitleClient, telemetryClient, db,
		func() player.Player { return player.NewBridge() }, logger)
	logger.Info("Session manager initialized")

	// 6. Initialize scheduler
	sched, err := scheduler.NewScheduler(manager, db, cfg.HeartbeatInterval, cfg.ProgressRetentionDays, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, manager, db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Binger is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	// Flush progress for whatever is still playing before exiting
	manager.StopAll()

	logger.Info("Binger stopped")
	return nil
}
