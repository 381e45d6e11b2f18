package controllers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
)

// PrefetchResult is the metadata captured when a prefetch job completes,
// spliced into the session at promotion time
type PrefetchResult struct {
	URL            string
	FileName       string
	DisplayQuality string
	Subtitles      []models.SubtitleDescriptor
	Markers        []models.SkipMarker
	Next           *models.NextContent
}

// SessionState is the single source of truth for one playback session.
// Readers get value snapshots; all writes go through Session.Update.
type SessionState struct {
	Content  models.ContentRef
	Autoplay bool

	// Acquisition
	Phase           models.Phase
	StatusMessage   string
	AcquireProgress float64
	JobID           string

	// Stream metadata
	StreamURL      string
	FileName       string
	DisplayQuality string

	// Player observation
	PlayerState player.State
	Position    float64
	Duration    float64
	Seeking     bool

	// Adaptation
	BufferEvents []time.Time

	// Tracks
	AudioTracks       []models.TrackCandidate
	Subtitles         []models.SubtitleOption
	ExternalSubtitles []models.SubtitleDescriptor
	ExternalFetched   bool
	// One-shot intent: set before our own track selections so the
	// resulting tracks-changed notification does not re-enter selection
	TrackIntent bool

	// Skip markers
	Markers   []models.SkipMarker
	Dismissed map[models.MarkerType]bool

	// Autoplay chain
	Next               *models.NextContent
	PrefetchState      models.PrefetchState
	PrefetchJobID      string
	PrefetchResult     *PrefetchResult
	CountdownRemaining int // seconds left, -1 when inactive
	UpNextVisible      bool
	AutoplayCancelled  bool

	// Recovery
	RetryUsed bool

	// Terminal, user-facing
	ErrorMessage string
}

// Session owns one on-screen playback from request to teardown. Every
// timer-driven task mutates state through Update, which refuses writes
// once the session is closed.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	player player.Player
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	state  SessionState

	// Captured on every observation so the final flush works after the
	// player handle is released
	lastPosition float64
	lastDuration float64
}

func newSession(p player.Player, ref models.ContentRef, autoplay bool, logger *logrus.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		player:    p,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		state: SessionState{
			Content:            ref,
			Autoplay:           autoplay,
			Phase:              models.PhaseIdle,
			Dismissed:          map[models.MarkerType]bool{},
			CountdownRemaining: -1,
		},
	}
}

// Context is cancelled when the session is torn down
func (s *Session) Context() context.Context {
	return s.ctx
}

// Player returns the playback surface; not usable after teardown
func (s *Session) Player() player.Player {
	return s.player
}

// Alive reports whether the session still accepts updates
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state
	snap.BufferEvents = append([]time.Time(nil), s.state.BufferEvents...)
	snap.Dismissed = make(map[models.MarkerType]bool, len(s.state.Dismissed))
	for k, v := range s.state.Dismissed {
		snap.Dismissed[k] = v
	}
	return snap
}

// Update applies a transition function to the latest state and publishes
// the result atomically. Returns false, without calling fn, once the
// session is torn down; timers that outlive the session become no-ops.
func (s *Session) Update(fn func(*SessionState)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn(&s.state)
	return true
}

// Observe records one player status read, keeping the last known
// position/duration for the final flush
func (s *Session) Observe(status player.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	s.state.PlayerState = status.State
	s.state.Position = status.Position
	s.state.Duration = status.Duration
	s.state.Seeking = status.Seeking

	if status.Duration > 0 {
		s.lastPosition = status.Position
		s.lastDuration = status.Duration
	}
	return true
}

// LastProgress returns the position/duration captured before the player
// was released
func (s *Session) LastProgress() (position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPosition, s.lastDuration
}

// close flips the liveness flag and cancels the session context. Returns
// false if the session was already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return true
}
