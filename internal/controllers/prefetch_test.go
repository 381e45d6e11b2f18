package controllers

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/resolver"
)

func newTestPrefetch(res *fakeResolver) *PrefetchController {
	acq := NewAcquisitionController(res, &fakeTelemetry{}, 5*time.Millisecond, time.Second, testLogger())
	prog := NewProgressController(newFakeStore(), &fakeTelemetry{}, testLogger())
	c := NewPrefetchController(res, acq, prog, 5*time.Millisecond, 75, 100*time.Millisecond, 2, testLogger())
	c.tick = 5 * time.Millisecond
	return c
}

func playingAt(s *Session, position, duration float64) {
	s.Update(func(st *SessionState) {
		st.Phase = models.PhasePlaying
		st.Position = position
		st.Duration = duration
	})
}

func TestMaybeTriggerFiresOnceAtThreshold(t *testing.T) {
	var prefetches int32
	next := testMovie()
	res := &fakeResolver{
		prefetchFn: func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
			atomic.AddInt32(&prefetches, 1)
			return &resolver.PrefetchResponse{
				HasNext: true,
				JobID:   "prefetch-1",
				Next:    &models.NextContent{ContentRef: next},
			}, nil
		},
		pollFn: func(jobID string) (*resolver.PollResponse, error) {
			return &resolver.PollResponse{
				Status: "completed",
				URL:    "https://cdn.example.com/next.mkv",
			}, nil
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 76, 100)

	c.MaybeTrigger(s)
	c.MaybeTrigger(s)

	waitFor(t, time.Second, func() bool {
		return s.Snapshot().PrefetchState == models.PrefetchReady
	})

	if got := atomic.LoadInt32(&prefetches); got != 1 {
		t.Errorf("Expected exactly one prefetch, got %d", got)
	}

	snap := s.Snapshot()
	if snap.PrefetchResult == nil || snap.PrefetchResult.URL != "https://cdn.example.com/next.mkv" {
		t.Errorf("Expected the prefetched URL to be captured, got %+v", snap.PrefetchResult)
	}
	if snap.Next == nil || snap.Next.ID != next.ID {
		t.Errorf("Expected the next-content identity to be captured, got %+v", snap.Next)
	}
}

func TestMaybeTriggerRespectsConditions(t *testing.T) {
	var prefetches int32
	res := &fakeResolver{
		prefetchFn: func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
			atomic.AddInt32(&prefetches, 1)
			return &resolver.PrefetchResponse{}, nil
		},
	}
	c := newTestPrefetch(res)

	// Below the threshold
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 50, 100)
	c.MaybeTrigger(s)

	// Autoplay off
	s2, _ := newTestSession(testEpisode(), false)
	playingAt(s2, 90, 100)
	c.MaybeTrigger(s2)

	// Unknown duration
	s3, _ := newTestSession(testEpisode(), true)
	playingAt(s3, 90, 0)
	c.MaybeTrigger(s3)

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&prefetches); got != 0 {
		t.Errorf("Expected no prefetch, got %d", got)
	}
}

func TestPlayNextSplicesReadyPrefetch(t *testing.T) {
	var starts, promotes, prefetches int32
	next := testMovie()
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			atomic.AddInt32(&starts, 1)
			return nil, fmt.Errorf("should not be called")
		},
		promoteFn: func(jobID string) (*resolver.PromoteResponse, error) {
			atomic.AddInt32(&promotes, 1)
			return nil, fmt.Errorf("should not be called")
		},
		prefetchFn: func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
			atomic.AddInt32(&prefetches, 1)
			return &resolver.PrefetchResponse{}, nil
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 2590, 2600)
	s.Update(func(st *SessionState) {
		st.Next = &models.NextContent{ContentRef: next}
		st.PrefetchState = models.PrefetchReady
		st.PrefetchJobID = "prefetch-1"
		st.PrefetchResult = &PrefetchResult{
			URL:            "https://cdn.example.com/next.mkv",
			FileName:       "next.mkv",
			DisplayQuality: "1080p",
		}
	})

	c.PlayNext(s)

	snap := s.Snapshot()
	if snap.Content.ID != next.ID {
		t.Fatalf("Expected the session to move onto the next unit, got %q", snap.Content.ID)
	}
	if snap.Phase != models.PhasePlaying || snap.StreamURL != "https://cdn.example.com/next.mkv" {
		t.Errorf("Expected the prefetched stream to be live, got %s %q", snap.Phase, snap.StreamURL)
	}
	if atomic.LoadInt32(&starts) != 0 || atomic.LoadInt32(&promotes) != 0 {
		t.Error("Splice must not round-trip through acquisition or promotion")
	}

	// The chain seeds a prefetch for the unit after the spliced one
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&prefetches) == 1
	})
}

func TestPlayNextFallsBackWhenNotReady(t *testing.T) {
	next := testMovie()
	var promotes int32
	res := &fakeResolver{
		promoteFn: func(jobID string) (*resolver.PromoteResponse, error) {
			atomic.AddInt32(&promotes, 1)
			return &resolver.PromoteResponse{Success: false, Status: "downloading"}, nil
		},
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{
				Immediate: true,
				URL:       "https://cdn.example.com/slow.mkv",
			}, nil
		},
		prefetchFn: func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
			return &resolver.PrefetchResponse{}, nil
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 2590, 2600)
	s.Update(func(st *SessionState) {
		st.Next = &models.NextContent{ContentRef: next}
		st.PrefetchState = models.PrefetchTriggered
		st.PrefetchJobID = "prefetch-1"
	})

	c.PlayNext(s)

	waitFor(t, time.Second, func() bool {
		snap := s.Snapshot()
		return snap.Content.ID == next.ID && snap.StreamURL == "https://cdn.example.com/slow.mkv"
	})

	if atomic.LoadInt32(&promotes) != 1 {
		t.Errorf("Expected one promotion attempt, got %d", promotes)
	}
}

func TestCountdownFiresPlayNext(t *testing.T) {
	next := testMovie()
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			return &resolver.StartResponse{
				Immediate: true,
				URL:       "https://cdn.example.com/next.mkv",
			}, nil
		},
		prefetchFn: func(req resolver.PrefetchRequest) (*resolver.PrefetchResponse, error) {
			return &resolver.PrefetchResponse{}, nil
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 2595, 2600)
	s.Update(func(st *SessionState) {
		st.Next = &models.NextContent{ContentRef: next}
	})

	c.StartCountdown(s)
	if snap := s.Snapshot(); !snap.UpNextVisible || snap.CountdownRemaining != 2 {
		t.Fatalf("Expected a visible 2s countdown, got %+v", snap.CountdownRemaining)
	}

	waitFor(t, time.Second, func() bool {
		return s.Snapshot().Content.ID == next.ID
	})
}

func TestDismissCancelsCountdown(t *testing.T) {
	var starts int32
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			atomic.AddInt32(&starts, 1)
			return &resolver.StartResponse{Immediate: true, URL: "https://cdn.example.com/x.mkv"}, nil
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 2595, 2600)
	s.Update(func(st *SessionState) {
		st.Next = &models.NextContent{ContentRef: testMovie()}
	})

	c.StartCountdown(s)
	c.Dismiss(s)

	time.Sleep(100 * time.Millisecond)

	snap := s.Snapshot()
	if snap.UpNextVisible || snap.CountdownRemaining != -1 {
		t.Errorf("Expected the countdown to be cleared, got visible=%v remaining=%d", snap.UpNextVisible, snap.CountdownRemaining)
	}
	if !snap.AutoplayCancelled {
		t.Error("Expected autoplay to stay cancelled for the session")
	}
	if snap.Content.ID != testEpisode().ID {
		t.Error("Did not expect a transition after dismissal")
	}
	if atomic.LoadInt32(&starts) != 0 {
		t.Error("Did not expect an acquisition after dismissal")
	}

	// Dismissal is sticky: a new countdown attempt is refused
	c.StartCountdown(s)
	if s.Snapshot().CountdownRemaining != -1 {
		t.Error("Expected countdown attempts after dismissal to no-op")
	}
}

func TestCountdownIsNoOpAfterTeardown(t *testing.T) {
	res := &fakeResolver{
		startFn: func(req resolver.StartRequest) (*resolver.StartResponse, error) {
			t.Error("Did not expect an acquisition after teardown")
			return nil, fmt.Errorf("torn down")
		},
	}
	c := newTestPrefetch(res)
	s, _ := newTestSession(testEpisode(), true)
	playingAt(s, 2595, 2600)
	s.Update(func(st *SessionState) {
		st.Next = &models.NextContent{ContentRef: testMovie()}
	})

	c.StartCountdown(s)
	s.close()

	// Give a leaked timer every chance to misbehave
	time.Sleep(100 * time.Millisecond)

	if s.Alive() {
		t.Error("Expected session to be closed")
	}
}

func TestOnEndedWithoutAutoplayEndsSession(t *testing.T) {
	c := newTestPrefetch(&fakeResolver{})
	s, _ := newTestSession(testEpisode(), false)
	playingAt(s, 2600, 2600)

	c.OnEnded(s)

	if snap := s.Snapshot(); snap.Phase != models.PhaseEnded {
		t.Errorf("Expected phase ended, got %s", snap.Phase)
	}
}
