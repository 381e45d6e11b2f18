package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/config"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
)

// Manager is the composition root for playback sessions: it builds the
// controllers, owns the session registry, and runs each session's
// single-consumer update loop
type Manager struct {
	cfg    *config.Config
	logger *logrus.Logger

	newPlayer PlayerFactory
	resolver  Resolver
	telemetry Telemetry

	Acquisition *AcquisitionController
	Adaptation  *AdaptationController
	Tracks      *TrackController
	Prefetch    *PrefetchController
	Skip        *SkipController
	Progress    *ProgressController
	Recovery    *RecoveryController

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager wires the controller graph
func NewManager(cfg *config.Config, res Resolver, search SubtitleSearcher, tel Telemetry, store ProgressStore, newPlayer PlayerFactory, logger *logrus.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		newPlayer: newPlayer,
		resolver:  res,
		telemetry: tel,
		sessions:  make(map[uuid.UUID]*Session),
	}

	m.Acquisition = NewAcquisitionController(res, tel, cfg.PollInterval, cfg.AcquireTimeout, logger)
	m.Adaptation = NewAdaptationController(res, tel, cfg.BufferWindow, cfg.BufferThreshold, logger)
	m.Tracks = NewTrackController(search, store, logger)
	m.Progress = NewProgressController(store, tel, logger)
	m.Prefetch = NewPrefetchController(res, m.Acquisition, m.Progress,
		cfg.PollInterval, float64(cfg.PrefetchTriggerPercent), cfg.PromoteTimeout, cfg.CountdownSeconds, logger)
	m.Skip = NewSkipController(m.Adaptation, m.Prefetch, cfg.MinSkipSpanSeconds, logger)
	m.Recovery = NewRecoveryController(m.Acquisition, tel, logger)

	return m
}

// StartPlayback opens a new session for a title and begins acquisition.
// Playback resumes from the locally saved position when one exists.
func (m *Manager) StartPlayback(ref models.ContentRef, autoplay bool) *Session {
	s := newSession(m.newPlayer(), ref, autoplay, m.logger)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"content_id": ref.ID,
		"title":      ref.Title,
		"autoplay":   autoplay,
	}).Info("Session opened")

	go m.runSession(s)
	go m.Acquisition.Start(s, ref, m.Progress.ResumePosition(ref.ID))

	return s
}

// Get returns a live session by id
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no session %s", id)
	}
	return s, nil
}

// Sessions returns all live sessions
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// runSession is the session's single consumer: it multiplexes player
// events with the 1s position tick until teardown
func (m *Manager) runSession(s *Session) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := s.Player().Events()

	for {
		select {
		case <-s.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(s, ev)
		case <-ticker.C:
			m.handleTick(s)
		}
	}
}

// handleTick reads the player position and drives the tick-dependent
// controllers
func (m *Manager) handleTick(s *Session) {
	if s.Snapshot().Phase != models.PhasePlaying {
		return
	}

	status, err := s.Player().Status()
	if err != nil {
		return
	}
	if !s.Observe(status) {
		return
	}

	m.Prefetch.MaybeTrigger(s)
	m.maybeShowUpNext(s, status)
}

// maybeShowUpNext starts the countdown when playback enters its final
// seconds
func (m *Manager) maybeShowUpNext(s *Session, status player.Status) {
	if status.Duration <= 0 || status.Seeking {
		return
	}
	snap := s.Snapshot()
	if !snap.Autoplay || snap.AutoplayCancelled || snap.Next == nil {
		return
	}
	if status.Duration-status.Position <= float64(m.cfg.CountdownSeconds) {
		m.Prefetch.StartCountdown(s)
	}
}

// handleEvent dispatches one player notification
func (m *Manager) handleEvent(s *Session, ev player.Event) {
	switch ev.Kind {
	case player.EventTracksChanged:
		m.Tracks.Apply(s)

	case player.EventFault:
		if ev.Fault != nil {
			m.Recovery.Handle(s, *ev.Fault)
		}

	case player.EventStateChanged:
		switch ev.State {
		case player.StateBuffering:
			m.Adaptation.OnBuffering(s)
		case player.StateEnded:
			m.onEnded(s)
		}
		s.Update(func(st *SessionState) {
			st.PlayerState = ev.State
		})
	}
}

// onEnded flushes progress for the finished unit and hands over to the
// autoplay chain
func (m *Manager) onEnded(s *Session) {
	m.Progress.Flush(s)

	snap := s.Snapshot()
	if snap.Content.Type == models.ContentTypeEpisode {
		// Between episodes is the cheap moment to re-measure bandwidth
		go m.Adaptation.TriggerBandwidthTest()
	}

	m.Prefetch.OnEnded(s)
}

// Stop tears down one session: timers become no-ops, in-flight jobs get a
// best-effort remote cancel, and progress is flushed one final time from
// values captured before the player was released.
func (m *Manager) Stop(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session %s", id)
	}

	m.teardown(s)
	return nil
}

func (m *Manager) teardown(s *Session) {
	snap := s.Snapshot()

	if !s.close() {
		return
	}

	for _, jobID := range []string{snap.JobID, snap.PrefetchJobID} {
		if jobID == "" {
			continue
		}
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = m.resolver.Cancel(ctx, id)
		}(jobID)
	}

	s.Player().Release()

	position, duration := s.LastProgress()
	m.Progress.FinalFlush(snap.Content, position, duration)

	m.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"content_id": snap.Content.ID,
		"position":   position,
	}).Info("Session torn down")
}

// HeartbeatAll runs the periodic heartbeat for every live session
func (m *Manager) HeartbeatAll() {
	for _, s := range m.Sessions() {
		if s.Alive() {
			m.Progress.Heartbeat(s)
		}
	}
}

// StopAll tears down every live session, used on shutdown
func (m *Manager) StopAll() {
	for _, s := range m.Sessions() {
		_ = m.Stop(s.ID)
	}
}
