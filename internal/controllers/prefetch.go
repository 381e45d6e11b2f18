package controllers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/metrics"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/resolver"
)

// PrefetchController runs the autoplay chain: it resolves the next content
// unit ahead of time, shows the up-next countdown, and splices the
// prefetched stream in at end-of-content
type PrefetchController struct {
	resolver    Resolver
	acquisition *AcquisitionController
	progress    *ProgressController

	pollInterval   time.Duration
	triggerPercent float64
	promoteTimeout time.Duration
	countdownSecs  int
	tick           time.Duration

	logger *logrus.Logger
}

// NewPrefetchController creates a new prefetch controller
func NewPrefetchController(res Resolver, acq *AcquisitionController, prog *ProgressController, pollInterval time.Duration, triggerPercent float64, promoteTimeout time.Duration, countdownSecs int, logger *logrus.Logger) *PrefetchController {
	return &PrefetchController{
		resolver:       res,
		acquisition:    acq,
		progress:       prog,
		pollInterval:   pollInterval,
		triggerPercent: triggerPercent,
		promoteTimeout: promoteTimeout,
		countdownSecs:  countdownSecs,
		tick:           time.Second,
		logger:         logger,
	}
}

// MaybeTrigger fires the prefetch once when playback crosses the trigger
// percentage. Called on every position tick.
func (c *PrefetchController) MaybeTrigger(s *Session) {
	snap := s.Snapshot()
	if !snap.Autoplay || snap.Duration <= 0 || snap.Phase != models.PhasePlaying {
		return
	}
	if snap.Position/snap.Duration*100 < c.triggerPercent {
		return
	}

	var claimed bool
	s.Update(func(st *SessionState) {
		if st.PrefetchState == models.PrefetchIdle {
			st.PrefetchState = models.PrefetchTriggered
			claimed = true
		}
	})
	if !claimed {
		return
	}

	go c.start(s)
}

// start asks the backend for the next unit and polls its job to readiness
func (c *PrefetchController) start(s *Session) {
	snap := s.Snapshot()

	req := resolver.PrefetchRequest{
		ContentID: snap.Content.ID,
		Title:     snap.Content.Title,
		Year:      snap.Content.Year,
		Type:      snap.Content.Type,
		Mode:      ModeFor(snap.Content.Type),
	}
	if snap.Content.Season != nil {
		req.CurrentSeason = *snap.Content.Season
	}
	if snap.Content.Episode != nil {
		req.CurrentEpisode = *snap.Content.Episode
	}

	resp, err := c.resolver.PrefetchNext(s.Context(), req)
	if err != nil {
		c.logger.WithError(err).Warn("Prefetch request failed")
		s.Update(func(st *SessionState) { st.PrefetchState = models.PrefetchFailed })
		return
	}
	if !resp.HasNext {
		c.logger.WithField("session_id", s.ID).Info("No next content to prefetch")
		s.Update(func(st *SessionState) { st.PrefetchState = models.PrefetchFailed })
		return
	}

	s.Update(func(st *SessionState) {
		st.PrefetchJobID = resp.JobID
		if resp.Next != nil {
			st.Next = resp.Next
		}
	})

	if resp.JobID == "" {
		// Identity known but no job to poll; promotion will fall back to
		// the normal acquisition path
		return
	}

	c.pollJob(s, resp.JobID)
}

// pollJob tracks the prefetch job until it is ready or fails. The live
// session keeps playing on its own timeline throughout.
func (c *PrefetchController) pollJob(s *Session, jobID string) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Context().Done():
			return
		case <-ticker.C:
		}

		if s.Snapshot().PrefetchJobID != jobID {
			return
		}

		resp, err := c.resolver.Poll(s.Context(), jobID)
		if err != nil {
			c.logger.WithError(err).WithField("job_id", jobID).Debug("Prefetch poll failed")
			continue
		}

		switch resp.Status {
		case "completed":
			if err := resolver.ValidateStreamURL(resp.URL); err != nil {
				c.logger.WithError(err).Warn("Prefetched stream has an unusable URL")
				s.Update(func(st *SessionState) { st.PrefetchState = models.PrefetchFailed })
				return
			}
			s.Update(func(st *SessionState) {
				st.PrefetchState = models.PrefetchReady
				st.PrefetchResult = &PrefetchResult{
					URL:            resp.URL,
					FileName:       resp.FileName,
					DisplayQuality: resp.DisplayQuality,
					Subtitles:      resp.Subtitles,
					Markers:        resp.SkipMarkers,
					Next:           resp.NextContent,
				}
			})
			c.logger.WithFields(logrus.Fields{
				"session_id": s.ID,
				"job_id":     jobID,
			}).Info("Prefetch ready")
			return

		case "failed", "error":
			if isTransientCycling(resp.Message) {
				continue
			}
			s.Update(func(st *SessionState) { st.PrefetchState = models.PrefetchFailed })
			c.logger.WithFields(logrus.Fields{
				"job_id":  jobID,
				"message": resp.Message,
			}).Warn("Prefetch job failed")
			return
		}
	}
}

// ModeFor maps a content type to the prefetch mode: the deterministic next
// episode for series, a recommendation for movies
func ModeFor(t models.ContentType) string {
	if t == models.ContentTypeEpisode {
		return resolver.ModeEpisode
	}
	return resolver.ModeRecommend
}

// StartCountdown shows the up-next affordance and begins the cancellable
// countdown. No-ops when one is already running or autoplay was cancelled.
func (c *PrefetchController) StartCountdown(s *Session) {
	var started bool
	s.Update(func(st *SessionState) {
		if st.AutoplayCancelled || st.Next == nil || st.CountdownRemaining >= 0 {
			return
		}
		st.CountdownRemaining = c.countdownSecs
		st.UpNextVisible = true
		started = true
	})
	if !started {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"seconds":    c.countdownSecs,
	}).Info("Up-next countdown started")

	go c.runCountdown(s)
}

// runCountdown ticks once per second. Each tick re-checks liveness and
// cancellation; an expired countdown invokes the play-next path.
func (c *PrefetchController) runCountdown(s *Session) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.Context().Done():
			return
		case <-ticker.C:
		}

		var fire, cancelled bool
		ok := s.Update(func(st *SessionState) {
			if st.CountdownRemaining < 0 {
				cancelled = true
				return
			}
			st.CountdownRemaining--
			if st.CountdownRemaining <= 0 {
				st.CountdownRemaining = -1
				st.UpNextVisible = false
				fire = true
			}
		})
		if !ok || cancelled {
			return
		}
		if fire {
			c.PlayNext(s)
			return
		}
	}
}

// Dismiss cancels the countdown and clears the up-next state for the rest
// of the session. The prefetch job stays alive; an explicit play-next can
// still use it.
func (c *PrefetchController) Dismiss(s *Session) {
	if !s.Update(func(st *SessionState) {
		st.CountdownRemaining = -1
		st.UpNextVisible = false
		st.AutoplayCancelled = true
	}) {
		return
	}
	c.logger.WithField("session_id", s.ID).Info("Up-next dismissed")
}

// OnEnded handles the player reaching its terminal state: transition
// immediately when autoplay is live, otherwise mark the session ended
func (c *PrefetchController) OnEnded(s *Session) {
	snap := s.Snapshot()

	if snap.Autoplay && !snap.AutoplayCancelled && snap.Next != nil {
		if snap.UpNextVisible {
			// The running countdown owns the transition
			return
		}
		c.StartCountdown(s)
		return
	}

	s.Update(func(st *SessionState) {
		st.Phase = models.PhaseEnded
		st.CountdownRemaining = -1
		st.UpNextVisible = false
	})
}

// PlayNext transitions the session onto the next content unit. Prefetched
// and ready: splice the stream straight in. Otherwise: fall back to a full
// acquisition round-trip for the known next identity.
func (c *PrefetchController) PlayNext(s *Session) {
	snap := s.Snapshot()
	if snap.Next == nil {
		s.Update(func(st *SessionState) { st.Phase = models.PhaseEnded })
		return
	}
	next := *snap.Next

	// Flush progress for the finishing unit before the state resets
	c.progress.Flush(s)

	if snap.PrefetchState == models.PrefetchReady && snap.PrefetchResult != nil {
		if c.splice(s, next, snap.PrefetchJobID, snap.PrefetchResult) {
			metrics.Promotions.WithLabelValues("prefetched").Inc()
			return
		}
	}

	if snap.PrefetchJobID != "" {
		if c.promote(s, next, snap.PrefetchJobID) {
			metrics.Promotions.WithLabelValues("promoted").Inc()
			return
		}
	}

	metrics.Promotions.WithLabelValues("slow").Inc()
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"next_id":    next.ID,
	}).Info("Prefetch not ready, falling back to full acquisition")
	go c.acquisition.Start(s, next.ContentRef, 0)
}

// promote asks the backend whether the prefetch job finished, bounded by
// the promote timeout, and splices on success
func (c *PrefetchController) promote(s *Session, next models.NextContent, jobID string) bool {
	ctx, cancel := context.WithTimeout(s.Context(), c.promoteTimeout)
	defer cancel()

	resp, err := c.resolver.Promote(ctx, jobID)
	if err != nil {
		c.logger.WithError(err).WithField("job_id", jobID).Info("Promotion not ready in time")
		return false
	}
	if !resp.Success || resolver.ValidateStreamURL(resp.URL) != nil {
		return false
	}

	result := &PrefetchResult{URL: resp.URL}
	if resp.HasNext {
		result.Next = resp.Next
	}
	return c.splice(s, next, jobID, result)
}

// splice loads the prefetched stream without a new acquisition round-trip
// and resets the per-content state for the new unit
func (c *PrefetchController) splice(s *Session, next models.NextContent, jobID string, result *PrefetchResult) bool {
	if err := s.Player().Load(s.Context(), result.URL, 0); err != nil {
		c.logger.WithError(err).Error("Player refused the prefetched stream")
		return false
	}

	if !s.Update(func(st *SessionState) {
		st.Content = next.ContentRef
		st.Phase = models.PhasePlaying
		st.StatusMessage = ""
		st.ErrorMessage = ""
		st.AcquireProgress = 100
		st.JobID = jobID
		st.StreamURL = result.URL
		st.FileName = result.FileName
		st.DisplayQuality = result.DisplayQuality
		st.Position = 0
		st.Duration = 0
		st.BufferEvents = nil
		st.AudioTracks = nil
		st.Subtitles = nil
		st.ExternalSubtitles = result.Subtitles
		st.ExternalFetched = false
		st.Markers = result.Markers
		st.Dismissed = map[models.MarkerType]bool{}
		st.Next = result.Next
		// Chain seeding below claims the trigger for the new unit
		st.PrefetchState = models.PrefetchTriggered
		st.PrefetchJobID = ""
		st.PrefetchResult = nil
		st.CountdownRemaining = -1
		st.UpNextVisible = false
		st.RetryUsed = false
	}) {
		return false
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"content_id": next.ID,
		"title":      next.Title,
	}).Info("Spliced prefetched stream")

	// Keep the chain going: resolve the unit after this one
	go c.start(s)
	return true
}
