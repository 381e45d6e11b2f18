package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/api/handlers"
	"github.com/lmercadier/binger/internal/api/middleware"
	"github.com/lmercadier/binger/internal/config"
	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	manager *controllers.Manager
	db      *models.Database
	logger  *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, manager *controllers.Manager, db *models.Database, logger *logrus.Logger) *Server {
	s := &Server{
		manager: manager,
		db:      db,
		logger:  logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.manager, s.db, s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.manager, s.db, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Playback sessions
	playbackHandler := handlers.NewPlaybackHandler(s.manager, s.logger)
	mux.HandleFunc("POST /api/playback", playbackHandler.Start)
	mux.HandleFunc("GET /api/playback/{id}", playbackHandler.Get)
	mux.HandleFunc("DELETE /api/playback/{id}", playbackHandler.Stop)
	mux.HandleFunc("POST /api/playback/{id}/skip", playbackHandler.Skip)
	mux.HandleFunc("POST /api/playback/{id}/next", playbackHandler.Next)
	mux.HandleFunc("POST /api/playback/{id}/dismiss", playbackHandler.Dismiss)
	mux.HandleFunc("POST /api/playback/{id}/report", playbackHandler.Report)
	mux.HandleFunc("PUT /api/playback/{id}/subtitle", playbackHandler.Subtitle)

	// Frontend player bridge
	playerHandler := handlers.NewPlayerHandler(s.manager, s.logger)
	mux.HandleFunc("GET /api/playback/{id}/player", playerHandler.ServeHTTP)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
