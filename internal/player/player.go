// Package player defines the contract of the black-box video player the
// session controller drives. Rendering and decoding happen elsewhere (a TV
// or web frontend); this package only models its primitives and the small
// closed set of notifications it emits.
package player

import (
	"context"

	"github.com/lmercadier/binger/internal/models"
)

// State is the playback state as reported by the player
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateBuffering State = "buffering"
	StateEnded     State = "ended"
)

// EventKind is the closed set of notifications a player emits
type EventKind string

const (
	EventStateChanged  EventKind = "state-changed"
	EventTracksChanged EventKind = "tracks-changed"
	EventFault         EventKind = "fault"
)

// Fault is a player-reported error, classified later by the recovery
// controller
type Fault struct {
	Code    string `json:"code"` // e.g. "codec", "network", "drm"
	Message string `json:"message"`
}

// Event is one notification delivered into the session's single-consumer
// update loop
type Event struct {
	Kind  EventKind `json:"kind"`
	State State     `json:"state,omitempty"`
	Fault *Fault    `json:"fault,omitempty"`
}

// Status is a point-in-time read of the player's position
type Status struct {
	State    State   `json:"state"`
	Position float64 `json:"position"` // seconds
	Duration float64 `json:"duration"` // seconds
	Seeking  bool    `json:"seeking"`
}

// Player is the black-box playback surface. Implementations must be safe
// for use from the session loop plus the poll, prefetch and countdown
// goroutines.
type Player interface {
	// Load hands a stream URL to the player, optionally resuming at a
	// position in seconds
	Load(ctx context.Context, url string, startAt float64) error

	Play() error
	Pause() error
	Seek(position float64) error

	// Status reads the current position; not callable after Release
	Status() (Status, error)

	AudioTracks() []models.TrackCandidate
	TextTracks() []models.TrackCandidate
	SelectAudio(id models.TrackID) error
	// SelectText with nil disables subtitles
	SelectText(id *models.TrackID) error

	// Events delivers state-changed, tracks-changed and fault
	// notifications until Release
	Events() <-chan Event

	// Release tears the player down; every other method errors afterwards
	Release()
}
