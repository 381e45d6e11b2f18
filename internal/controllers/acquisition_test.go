package controllers

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/resolver"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within timeout")
}

func newTestAcquisition(res *fakeResolver, tel *fakeTelemetry) *AcquisitionController {
	return NewAcquisitionController(res, tel, 5*time.Millisecond, time.Second, testLogger())
}

func TestStartImmediateHandoff(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{
				Immediate:      true,
				URL:            "https://cdn.example.com/stream.mkv",
				FileName:       "stream.mkv",
				DisplayQuality: "1080p",
			}, nil
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhasePlaying {
		t.Fatalf("Expected phase playing, got %s", snap.Phase)
	}
	if snap.StreamURL != "https://cdn.example.com/stream.mkv" {
		t.Errorf("Expected stream URL to be captured, got %q", snap.StreamURL)
	}
	if snap.DisplayQuality != "1080p" {
		t.Errorf("Expected quality 1080p, got %q", snap.DisplayQuality)
	}
}

func TestStartAsyncPollToCompletion(t *testing.T) {
	var calls int32
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{JobID: "job-1"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				return &resolver.PollResponse{Status: "searching", Progress: 10}, nil
			case 2:
				return &resolver.PollResponse{Status: "downloading", Progress: 40}, nil
			case 3:
				return &resolver.PollResponse{Status: "downloading", Progress: 70}, nil
			default:
				return &resolver.PollResponse{
					Status:   "completed",
					Progress: 100,
					URL:      "https://cdn.example.com/stream.mkv",
					FileName: "stream.mkv",
				}, nil
			}
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhasePlaying {
		t.Fatalf("Expected phase playing, got %s (error: %s)", snap.Phase, snap.ErrorMessage)
	}
	if snap.JobID != "job-1" {
		t.Errorf("Expected job-1 to stay the session job, got %q", snap.JobID)
	}
	if snap.AcquireProgress != 100 {
		t.Errorf("Expected progress 100, got %f", snap.AcquireProgress)
	}
}

func TestStartTransientCyclingContinuesPolling(t *testing.T) {
	var calls int32
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{JobID: "job-1"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			n := atomic.AddInt32(&calls, 1)
			if n <= 3 {
				return &resolver.PollResponse{
					Status:  "failed",
					Message: fmt.Sprintf("Trying next source (%d/5)", n),
				}, nil
			}
			return &resolver.PollResponse{
				Status: "completed",
				URL:    "https://cdn.example.com/stream.mkv",
			}, nil
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhasePlaying {
		t.Fatalf("Expected cycling to end in playback, got %s (error: %s)", snap.Phase, snap.ErrorMessage)
	}
	if atomic.LoadInt32(&calls) < 4 {
		t.Errorf("Expected polling to continue through cycling, got %d polls", calls)
	}
}

func TestStartTerminalFailure(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{JobID: "job-1"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			return &resolver.PollResponse{Status: "failed", Message: "No source found"}, nil
		},
	}
	tel := &fakeTelemetry{}
	c := newTestAcquisition(res, tel)
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhaseFailed {
		t.Fatalf("Expected phase failed, got %s", snap.Phase)
	}
	if snap.ErrorMessage != "No source found" {
		t.Errorf("Expected backend message to surface, got %q", snap.ErrorMessage)
	}

	waitFor(t, time.Second, func() bool {
		tel.mu.Lock()
		defer tel.mu.Unlock()
		return len(tel.faults) == 1
	})
}

func TestStartConsecutivePollFailures(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{JobID: "job-1"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhaseFailed {
		t.Fatalf("Expected phase failed after repeated poll errors, got %s", snap.Phase)
	}
	if got := res.pollCount(); got != maxConsecutivePollFailures {
		t.Errorf("Expected exactly %d polls, got %d", maxConsecutivePollFailures, got)
	}
}

func TestStartTimeout(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{JobID: "job-1"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			return &resolver.PollResponse{Status: "searching", Progress: 5}, nil
		},
	}
	c := NewAcquisitionController(res, &fakeTelemetry{}, 5*time.Millisecond, 20*time.Millisecond, testLogger())
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	snap := s.Snapshot()
	if snap.Phase != models.PhaseFailed {
		t.Fatalf("Expected phase failed on timeout, got %s", snap.Phase)
	}
	if snap.ErrorMessage != "Search timed out" {
		t.Errorf("Expected timeout message, got %q", snap.ErrorMessage)
	}
}

func TestStartRejectsInvalidURL(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{Immediate: true, URL: "ftp://bad/stream"}, nil
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)

	c.Start(s, testEpisode(), 0)

	if snap := s.Snapshot(); snap.Phase != models.PhaseFailed {
		t.Fatalf("Expected phase failed on invalid scheme, got %s", snap.Phase)
	}
}

func TestReportBadStreamSupersedesJob(t *testing.T) {
	res := &fakeResolver{
		reportFn: func(jobID, reason string) (*resolver.ReportResponse, error) {
			if jobID != "job-1" {
				t.Errorf("Expected report against job-1, got %q", jobID)
			}
			return &resolver.ReportResponse{Success: true, NewJobID: "job-2"}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			if jobID != "job-2" {
				return &resolver.PollResponse{Status: "searching"}, nil
			}
			return &resolver.PollResponse{
				Status: "completed",
				URL:    "https://cdn.example.com/better.mkv",
			}, nil
		},
	}
	c := newTestAcquisition(res, &fakeTelemetry{})
	s, _ := newTestSession(testEpisode(), false)
	s.Update(func(st *SessionState) {
		st.JobID = "job-1"
		st.Phase = models.PhasePlaying
	})

	if err := c.ReportBadStream(s, "codec error", 120); err != nil {
		t.Fatalf("ReportBadStream failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return s.Snapshot().Phase == models.PhasePlaying && s.Snapshot().StreamURL != ""
	})

	snap := s.Snapshot()
	if snap.JobID != "job-2" {
		t.Errorf("Expected session to follow the new job, got %q", snap.JobID)
	}
	if snap.StreamURL != "https://cdn.example.com/better.mkv" {
		t.Errorf("Expected the replacement stream, got %q", snap.StreamURL)
	}
}

func TestIsTransientCycling(t *testing.T) {
	if !isTransientCycling("Trying next source (2/5)") {
		t.Error("Expected cycling message to be transient")
	}
	if isTransientCycling("No source found") {
		t.Error("Did not expect terminal message to be transient")
	}
}
