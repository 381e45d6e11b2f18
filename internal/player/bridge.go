package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/lmercadier/binger/internal/models"
)

// CommandKind is the set of commands the controller sends to the frontend
type CommandKind string

const (
	CommandLoad        CommandKind = "load"
	CommandPlay        CommandKind = "play"
	CommandPause       CommandKind = "pause"
	CommandSeek        CommandKind = "seek"
	CommandSelectAudio CommandKind = "select-audio"
	CommandSelectText  CommandKind = "select-text"
)

// Command is one instruction for the remote frontend
type Command struct {
	Kind     CommandKind     `json:"kind"`
	URL      string          `json:"url,omitempty"`
	StartAt  float64         `json:"startAt,omitempty"`
	Position float64         `json:"position,omitempty"`
	Track    *models.TrackID `json:"track,omitempty"`
}

// Bridge implements Player over a command/report channel pair. The remote
// frontend (connected through the websocket handler) consumes Commands and
// pushes status reports and events back. Tests drive it directly.
type Bridge struct {
	mu       sync.Mutex
	status   Status
	audio    []models.TrackCandidate
	text     []models.TrackCandidate
	released bool

	events   chan Event
	commands chan Command
}

// NewBridge creates a bridge player in the idle state
func NewBridge() *Bridge {
	return &Bridge{
		status:   Status{State: StateIdle},
		events:   make(chan Event, 32),
		commands: make(chan Command, 32),
	}
}

// Commands exposes the outbound command stream for the frontend side
func (b *Bridge) Commands() <-chan Command {
	return b.commands
}

// send enqueues a command for the frontend. The channel write stays under
// the lock so Release cannot close the channel mid-send.
func (b *Bridge) send(cmd Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("player released")
	}

	// Drop instead of blocking the session loop on a stalled frontend
	select {
	case b.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("player command queue full")
	}
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}

// Load hands a stream URL to the frontend and enters the loading state
func (b *Bridge) Load(ctx context.Context, url string, startAt float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.send(Command{Kind: CommandLoad, URL: url, StartAt: startAt}); err != nil {
		return err
	}

	b.mu.Lock()
	b.status = Status{State: StateLoading, Position: startAt}
	b.mu.Unlock()
	return nil
}

// Play resumes playback
func (b *Bridge) Play() error {
	return b.send(Command{Kind: CommandPlay})
}

// Pause pauses playback
func (b *Bridge) Pause() error {
	return b.send(Command{Kind: CommandPause})
}

// Seek jumps to a position in seconds
func (b *Bridge) Seek(position float64) error {
	return b.send(Command{Kind: CommandSeek, Position: position})
}

// Status reads the last reported position
func (b *Bridge) Status() (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return Status{}, fmt.Errorf("player released")
	}
	return b.status, nil
}

// AudioTracks returns the last reported audio track set
func (b *Bridge) AudioTracks() []models.TrackCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.TrackCandidate, len(b.audio))
	copy(out, b.audio)
	return out
}

// TextTracks returns the last reported text track set
func (b *Bridge) TextTracks() []models.TrackCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.TrackCandidate, len(b.text))
	copy(out, b.text)
	return out
}

// SelectAudio switches the audio track. The selection is applied
// optimistically and re-announced as a tracks-changed event, mirroring
// players whose selection callbacks re-enter track handling.
func (b *Bridge) SelectAudio(id models.TrackID) error {
	if err := b.send(Command{Kind: CommandSelectAudio, Track: &id}); err != nil {
		return err
	}

	b.mu.Lock()
	for i := range b.audio {
		b.audio[i].Selected = b.audio[i].ID == id
	}
	b.mu.Unlock()

	b.emit(Event{Kind: EventTracksChanged})
	return nil
}

// SelectText switches the text track; nil disables subtitles
func (b *Bridge) SelectText(id *models.TrackID) error {
	if err := b.send(Command{Kind: CommandSelectText, Track: id}); err != nil {
		return err
	}

	b.mu.Lock()
	for i := range b.text {
		b.text[i].Selected = id != nil && b.text[i].ID == *id
	}
	b.mu.Unlock()

	b.emit(Event{Kind: EventTracksChanged})
	return nil
}

// Events delivers the player's notifications
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Release tears the bridge down; pending commands are discarded
func (b *Bridge) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	close(b.commands)
}

// Frontend-side reporting

// ReportStatus records a position update from the frontend
func (b *Bridge) ReportStatus(status Status) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	changed := b.status.State != status.State
	b.status = status
	b.mu.Unlock()

	if changed {
		b.emit(Event{Kind: EventStateChanged, State: status.State})
	}
}

// ReportState records a state transition from the frontend, keeping the
// last known position
func (b *Bridge) ReportState(state State) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	changed := b.status.State != state
	b.status.State = state
	b.mu.Unlock()

	if changed {
		b.emit(Event{Kind: EventStateChanged, State: state})
	}
}

// ReportTracks records the track sets exposed after the player loads
func (b *Bridge) ReportTracks(audio, text []models.TrackCandidate) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.audio = append([]models.TrackCandidate(nil), audio...)
	b.text = append([]models.TrackCandidate(nil), text...)
	b.mu.Unlock()

	b.emit(Event{Kind: EventTracksChanged})
}

// ReportFault records a playback fault from the frontend
func (b *Bridge) ReportFault(code, message string) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.emit(Event{Kind: EventFault, Fault: &Fault{Code: code, Message: message}})
}
