package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
)

// PlayerHandler connects the frontend's player to a session's command
// bridge over a websocket
type PlayerHandler struct {
	manager  *controllers.Manager
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewPlayerHandler creates a new player bridge handler
func NewPlayerHandler(manager *controllers.Manager, logger *logrus.Logger) *PlayerHandler {
	return &PlayerHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local single-user daemon, the frontend is on the same host
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// report is one inbound frontend message
type report struct {
	Kind string `json:"kind"` // status|state|tracks|fault

	Status *player.Status `json:"status,omitempty"`
	State  player.State   `json:"state,omitempty"`

	Audio []models.TrackCandidate `json:"audio,omitempty"`
	Text  []models.TrackCandidate `json:"text,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServeHTTP upgrades GET /api/playback/{id}/player and pumps commands out
// and reports in until either side disconnects
func (h *PlayerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return
	}
	s, err := h.manager.Get(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	bridge, ok := s.Player().(*player.Bridge)
	if !ok {
		http.Error(w, "Session has no remote player", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.WithField("session_id", s.ID).Info("Player frontend connected")

	go h.writeCommands(conn, bridge, s)
	h.readReports(conn, bridge, s)
}

// writeCommands forwards bridge commands to the frontend. Exits when the
// bridge is released or the connection breaks.
func (h *PlayerHandler) writeCommands(conn *websocket.Conn, bridge *player.Bridge, s *controllers.Session) {
	for {
		select {
		case <-s.Context().Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			return
		case cmd, ok := <-bridge.Commands():
			if !ok {
				return
			}
			if err := conn.WriteJSON(cmd); err != nil {
				h.logger.WithError(err).Debug("Command write failed")
				return
			}
		}
	}
}

// readReports feeds frontend reports into the bridge until disconnect
func (h *PlayerHandler) readReports(conn *websocket.Conn, bridge *player.Bridge, s *controllers.Session) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.WithField("session_id", s.ID).Debug("Player frontend disconnected")
			return
		}

		var rep report
		if err := json.Unmarshal(data, &rep); err != nil {
			h.logger.WithError(err).Debug("Unparseable player report")
			continue
		}

		switch rep.Kind {
		case "status":
			if rep.Status != nil {
				bridge.ReportStatus(*rep.Status)
			}
		case "state":
			bridge.ReportState(rep.State)
		case "tracks":
			bridge.ReportTracks(rep.Audio, rep.Text)
		case "fault":
			bridge.ReportFault(rep.Code, rep.Message)
		default:
			h.logger.WithField("kind", rep.Kind).Debug("Unknown player report kind")
		}
	}
}
