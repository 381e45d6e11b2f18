package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	manager *controllers.Manager
	db      *models.Database
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager *controllers.Manager, db *models.Database, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		manager: manager,
		db:      db,
		logger:  logger,
	}
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	ActiveSessions int    `json:"active_sessions"`
}

// ServeHTTP handles the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:         "healthy",
		Database:       "ok",
		ActiveSessions: len(h.manager.Sessions()),
	}

	code := http.StatusOK
	if err := h.db.Ping(); err != nil {
		h.logger.WithError(err).Error("Health check cannot reach database")
		response.Status = "degraded"
		response.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
