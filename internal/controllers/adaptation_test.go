package controllers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/resolver"
)

func TestOnBufferingBelowThreshold(t *testing.T) {
	var fallbacks int32
	res := &fakeResolver{
		fallbackFn: func(req resolver.FallbackRequest) (*resolver.FallbackResponse, error) {
			atomic.AddInt32(&fallbacks, 1)
			return &resolver.FallbackResponse{}, nil
		},
	}
	c := NewAdaptationController(res, &fakeTelemetry{}, time.Minute, 3, testLogger())
	s, _ := newTestSession(testMovie(), false)

	c.OnBuffering(s)
	c.OnBuffering(s)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fallbacks) != 0 {
		t.Error("Did not expect a fallback below the threshold")
	}
	if got := len(s.Snapshot().BufferEvents); got != 2 {
		t.Errorf("Expected 2 recorded events, got %d", got)
	}
}

func TestOnBufferingThresholdTriggersFallback(t *testing.T) {
	var fallbacks int32
	res := &fakeResolver{
		fallbackFn: func(req resolver.FallbackRequest) (*resolver.FallbackResponse, error) {
			atomic.AddInt32(&fallbacks, 1)
			return &resolver.FallbackResponse{
				URL:            "https://cdn.example.com/720p.mkv",
				DisplayQuality: "720p",
			}, nil
		},
	}
	tel := &fakeTelemetry{}
	c := NewAdaptationController(res, tel, time.Minute, 3, testLogger())
	s, _ := newTestSession(testMovie(), false)
	s.Update(func(st *SessionState) {
		st.Phase = models.PhasePlaying
		st.Position = 640
		st.Duration = 5400
		st.DisplayQuality = "1080p"
	})

	c.OnBuffering(s)
	c.OnBuffering(s)
	c.OnBuffering(s)

	waitFor(t, time.Second, func() bool {
		return s.Snapshot().DisplayQuality == "720p"
	})

	snap := s.Snapshot()
	if snap.StreamURL != "https://cdn.example.com/720p.mkv" {
		t.Errorf("Expected the fallback stream, got %q", snap.StreamURL)
	}
	if len(snap.BufferEvents) != 0 {
		t.Errorf("Expected the window to be cleared after the fallback, got %d events", len(snap.BufferEvents))
	}
	if atomic.LoadInt32(&fallbacks) != 1 {
		t.Errorf("Expected exactly one fallback request, got %d", fallbacks)
	}
}

func TestOnBufferingWindowPrunesOldEvents(t *testing.T) {
	var fallbacks int32
	res := &fakeResolver{
		fallbackFn: func(req resolver.FallbackRequest) (*resolver.FallbackResponse, error) {
			atomic.AddInt32(&fallbacks, 1)
			return &resolver.FallbackResponse{}, nil
		},
	}
	c := NewAdaptationController(res, &fakeTelemetry{}, time.Minute, 3, testLogger())
	s, _ := newTestSession(testMovie(), false)

	base := time.Now()
	c.now = func() time.Time { return base }
	c.OnBuffering(s)
	c.OnBuffering(s)

	// Two minutes later, the old events have aged out of the window
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.OnBuffering(s)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fallbacks) != 0 {
		t.Error("Did not expect a fallback from stale events")
	}
	if got := len(s.Snapshot().BufferEvents); got != 1 {
		t.Errorf("Expected only the fresh event in the window, got %d", got)
	}
}

func TestFallbackUnavailableKeepsStream(t *testing.T) {
	res := &fakeResolver{
		fallbackFn: func(req resolver.FallbackRequest) (*resolver.FallbackResponse, error) {
			return &resolver.FallbackResponse{}, nil
		},
	}
	c := NewAdaptationController(res, &fakeTelemetry{}, time.Minute, 3, testLogger())
	s, _ := newTestSession(testMovie(), false)
	s.Update(func(st *SessionState) {
		st.StreamURL = "https://cdn.example.com/1080p.mkv"
		st.DisplayQuality = "1080p"
	})

	c.fallback(s)

	snap := s.Snapshot()
	if snap.StreamURL != "https://cdn.example.com/1080p.mkv" || snap.DisplayQuality != "1080p" {
		t.Errorf("Expected the original stream to survive, got %q %q", snap.StreamURL, snap.DisplayQuality)
	}
}
