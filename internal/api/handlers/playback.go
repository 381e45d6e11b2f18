package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
)

// PlaybackHandler exposes the playback session lifecycle to the frontend
type PlaybackHandler struct {
	manager *controllers.Manager
	logger  *logrus.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(manager *controllers.Manager, logger *logrus.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		manager: manager,
		logger:  logger,
	}
}

// StartRequest is the body of POST /api/playback
type StartRequest struct {
	ContentID        string `json:"contentId"`
	Title            string `json:"title"`
	Year             int    `json:"year,omitempty"`
	Type             string `json:"type"`
	Season           *int   `json:"season,omitempty"`
	Episode          *int   `json:"episode,omitempty"`
	OriginalLanguage string `json:"originalLanguage,omitempty"`
	Autoplay         bool   `json:"autoplay"`
}

// StateResponse is the session snapshot returned to the frontend
type StateResponse struct {
	SessionID string `json:"sessionId"`

	ContentID string `json:"contentId"`
	Title     string `json:"title"`
	Code      string `json:"code,omitempty"`

	Phase           string  `json:"phase"`
	StatusMessage   string  `json:"statusMessage,omitempty"`
	AcquireProgress float64 `json:"acquireProgress"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`

	FileName       string  `json:"fileName,omitempty"`
	DisplayQuality string  `json:"displayQuality,omitempty"`
	Position       float64 `json:"position"`
	Duration       float64 `json:"duration"`
	PlayerState    string  `json:"playerState"`

	AudioTracks       []models.TrackCandidate     `json:"audioTracks,omitempty"`
	Subtitles         []models.SubtitleOption     `json:"subtitles,omitempty"`
	ExternalSubtitles []models.SubtitleDescriptor `json:"externalSubtitles,omitempty"`

	VisibleMarkers []models.SkipMarker `json:"visibleMarkers,omitempty"`

	Next               *models.NextContent `json:"next,omitempty"`
	UpNextVisible      bool                `json:"upNextVisible"`
	CountdownRemaining int                 `json:"countdownRemaining"`
}

// Start handles POST /api/playback
func (h *PlaybackHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ContentID == "" || req.Title == "" {
		http.Error(w, "contentId and title are required", http.StatusBadRequest)
		return
	}

	contentType := models.ContentTypeMovie
	if req.Type == string(models.ContentTypeEpisode) {
		contentType = models.ContentTypeEpisode
	}

	s := h.manager.StartPlayback(models.ContentRef{
		ID:               req.ContentID,
		Title:            req.Title,
		Year:             req.Year,
		Type:             contentType,
		Season:           req.Season,
		Episode:          req.Episode,
		OriginalLanguage: req.OriginalLanguage,
	}, req.Autoplay)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": s.ID.String()})
}

// Get handles GET /api/playback/{id}
func (h *PlaybackHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap := s.Snapshot()
	response := StateResponse{
		SessionID:          s.ID.String(),
		ContentID:          snap.Content.ID,
		Title:              snap.Content.Title,
		Code:               snap.Content.Code(),
		Phase:              string(snap.Phase),
		StatusMessage:      snap.StatusMessage,
		AcquireProgress:    snap.AcquireProgress,
		ErrorMessage:       snap.ErrorMessage,
		FileName:           snap.FileName,
		DisplayQuality:     snap.DisplayQuality,
		Position:           snap.Position,
		Duration:           snap.Duration,
		PlayerState:        string(snap.PlayerState),
		AudioTracks:        snap.AudioTracks,
		Subtitles:          snap.Subtitles,
		ExternalSubtitles:  snap.ExternalSubtitles,
		VisibleMarkers:     h.manager.Skip.VisibleMarkers(snap),
		Next:               snap.Next,
		UpNextVisible:      snap.UpNextVisible,
		CountdownRemaining: snap.CountdownRemaining,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Stop handles DELETE /api/playback/{id}
func (h *PlaybackHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}
	if err := h.manager.Stop(id); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Skip handles POST /api/playback/{id}/skip
func (h *PlaybackHandler) Skip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Marker string `json:"marker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.Skip.Skip(s, models.MarkerType(req.Marker)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Next handles POST /api/playback/{id}/next, the explicit "play now"
// action on the up-next affordance
func (h *PlaybackHandler) Next(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	// Stop the countdown; the user already decided
	s.Update(func(st *controllers.SessionState) {
		st.CountdownRemaining = -1
		st.UpNextVisible = false
	})

	go h.manager.Prefetch.PlayNext(s)
	w.WriteHeader(http.StatusAccepted)
}

// Dismiss handles POST /api/playback/{id}/dismiss
func (h *PlaybackHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.manager.Prefetch.Dismiss(s)
	w.WriteHeader(http.StatusNoContent)
}

// Report handles POST /api/playback/{id}/report, the user-facing "this
// stream is broken" action
func (h *PlaybackHandler) Report(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "user report"
	}

	position, _ := s.LastProgress()
	if err := h.manager.Acquisition.ReportBadStream(s, req.Reason, position); err != nil {
		h.logger.WithError(err).Warn("Bad stream report failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Subtitle handles PUT /api/playback/{id}/subtitle
func (h *PlaybackHandler) Subtitle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Enabled  bool   `json:"enabled"`
		Language string `json:"language,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var lang *string
	if req.Enabled {
		if req.Language == "" {
			http.Error(w, "language is required when enabling subtitles", http.StatusBadRequest)
			return
		}
		lang = &req.Language
	}

	if err := h.manager.Tracks.SetSubtitle(s, lang); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the {id} path value into a live session
func (h *PlaybackHandler) session(w http.ResponseWriter, r *http.Request) (*controllers.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return nil, false
	}
	s, err := h.manager.Get(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}
