package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
)

// StatusHandler handles status requests
type StatusHandler struct {
	manager *controllers.Manager
	db      *models.Database
	logger  *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(manager *controllers.Manager, db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		db:      db,
		logger:  logger,
	}
}

// SessionSummary is one live session in the status response
type SessionSummary struct {
	ID        string  `json:"id"`
	ContentID string  `json:"content_id"`
	Title     string  `json:"title"`
	Phase     string  `json:"phase"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Quality   string  `json:"quality,omitempty"`
}

// StatusResponse represents the status response
type StatusResponse struct {
	ActiveSessions int              `json:"active_sessions"`
	Sessions       []SessionSummary `json:"sessions"`
	TotalProgress  int              `json:"total_progress_records"`
	Completed      int              `json:"completed"`
	InProgress     int              `json:"in_progress"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.manager.Sessions()
	response := StatusResponse{
		ActiveSessions: len(sessions),
		Sessions:       make([]SessionSummary, 0, len(sessions)),
	}

	for _, s := range sessions {
		snap := s.Snapshot()
		response.Sessions = append(response.Sessions, SessionSummary{
			ID:        s.ID.String(),
			ContentID: snap.Content.ID,
			Title:     snap.Content.Title,
			Phase:     string(snap.Phase),
			Position:  snap.Position,
			Duration:  snap.Duration,
			Quality:   snap.DisplayQuality,
		})
	}

	records, err := h.db.GetAllProgress()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get progress records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response.TotalProgress = len(records)
	for _, record := range records {
		if record.Completed {
			response.Completed++
		} else {
			response.InProgress++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
