package controllers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/metrics"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/services/resolver"
)

// maxConsecutivePollFailures terminates the search when the backend stops
// answering poll requests
const maxConsecutivePollFailures = 3

// AcquisitionController resolves a playable URL for a session, either
// immediately or by polling an asynchronous job
type AcquisitionController struct {
	resolver  Resolver
	telemetry Telemetry

	pollInterval   time.Duration
	acquireTimeout time.Duration

	logger *logrus.Logger
}

// NewAcquisitionController creates a new acquisition controller
func NewAcquisitionController(res Resolver, tel Telemetry, pollInterval, acquireTimeout time.Duration, logger *logrus.Logger) *AcquisitionController {
	return &AcquisitionController{
		resolver:       res,
		telemetry:      tel,
		pollInterval:   pollInterval,
		acquireTimeout: acquireTimeout,
		logger:         logger,
	}
}

// handoffData is the resolved stream plus the metadata captured with it
type handoffData struct {
	URL            string
	FileName       string
	DisplayQuality string
	Subtitles      []models.SubtitleDescriptor
	Markers        []models.SkipMarker
	Next           *models.NextContent
}

// Start resolves a source for the given content and hands it to the
// player. Runs to completion; callers invoke it from a goroutine.
func (c *AcquisitionController) Start(s *Session, ref models.ContentRef, resumeAt float64) {
	if !s.Update(func(st *SessionState) {
		st.Content = ref
		st.Phase = models.PhaseSearching
		st.StatusMessage = "Searching for a source"
		st.AcquireProgress = 0
		st.ErrorMessage = ""
		st.JobID = ""
		st.StreamURL = ""
		st.BufferEvents = nil
		st.Markers = nil
		st.Dismissed = map[models.MarkerType]bool{}
		st.AudioTracks = nil
		st.Subtitles = nil
		st.ExternalSubtitles = nil
		st.ExternalFetched = false
		st.Next = nil
		st.PrefetchState = models.PrefetchIdle
		st.PrefetchJobID = ""
		st.PrefetchResult = nil
		st.CountdownRemaining = -1
		st.UpNextVisible = false
	}) {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"content_id": ref.ID,
		"title":      ref.Title,
	}).Info("Starting acquisition")

	resp, err := c.resolver.Start(s.Context(), resolver.StartRequest{
		ContentID: ref.ID,
		Title:     ref.Title,
		Year:      ref.Year,
		Type:      ref.Type,
		Season:    ref.Season,
		Episode:   ref.Episode,
	})
	if err != nil {
		metrics.Acquisitions.WithLabelValues("failed").Inc()
		c.fail(s, "Could not reach the source service")
		return
	}

	if resp.Immediate {
		if err := resolver.ValidateStreamURL(resp.URL); err != nil {
			metrics.Acquisitions.WithLabelValues("failed").Inc()
			c.logger.WithError(err).Error("Immediate source has an unusable URL")
			c.fail(s, "Source returned an unusable stream")
			return
		}
		c.handoff(s, handoffData{
			URL:            resp.URL,
			FileName:       resp.FileName,
			DisplayQuality: resp.DisplayQuality,
			Subtitles:      resp.Subtitles,
			Markers:        resp.SkipMarkers,
			Next:           resp.NextContent,
		}, resumeAt)
		return
	}

	s.Update(func(st *SessionState) {
		st.JobID = resp.JobID
	})
	c.pollLoop(s, resp.JobID, resumeAt)
}

// pollLoop drives an asynchronous job until handoff or terminal failure.
// It exits silently when its job is superseded by a newer one.
func (c *AcquisitionController) pollLoop(s *Session, jobID string, resumeAt float64) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(c.acquireTimeout)
	failures := 0

	for {
		select {
		case <-s.Context().Done():
			return
		case <-ticker.C:
		}

		if s.Snapshot().JobID != jobID {
			// A report-bad-stream or promotion replaced this job
			return
		}

		if time.Now().After(deadline) {
			metrics.Acquisitions.WithLabelValues("timeout").Inc()
			c.fail(s, "Search timed out")
			return
		}

		resp, err := c.resolver.Poll(s.Context(), jobID)
		if err != nil {
			failures++
			c.logger.WithError(err).WithFields(logrus.Fields{
				"job_id":   jobID,
				"failures": failures,
			}).Warn("Poll request failed")

			if failures >= maxConsecutivePollFailures {
				metrics.Acquisitions.WithLabelValues("failed").Inc()
				c.fail(s, "Connection lost while searching")
				return
			}
			continue
		}
		failures = 0

		switch resp.Status {
		case "searching":
			s.Update(func(st *SessionState) {
				st.Phase = models.PhaseSearching
				st.AcquireProgress = resp.Progress
				st.StatusMessage = resp.Message
			})

		case "downloading":
			s.Update(func(st *SessionState) {
				st.Phase = models.PhaseDownloading
				st.AcquireProgress = resp.Progress
				st.StatusMessage = resp.Message
			})

		case "completed":
			if err := resolver.ValidateStreamURL(resp.URL); err != nil {
				metrics.Acquisitions.WithLabelValues("failed").Inc()
				c.logger.WithError(err).WithField("job_id", jobID).Error("Completed job has an unusable URL")
				c.fail(s, "Source returned an unusable stream")
				return
			}
			c.handoff(s, handoffData{
				URL:            resp.URL,
				FileName:       resp.FileName,
				DisplayQuality: resp.DisplayQuality,
				Subtitles:      resp.Subtitles,
				Markers:        resp.SkipMarkers,
				Next:           resp.NextContent,
			}, resumeAt)

			if resp.SuggestBandwidthRetest {
				go func() {
					_ = c.telemetry.RunBandwidthTest(context.Background())
				}()
			}
			return

		case "failed", "error":
			if isTransientCycling(resp.Message) {
				// The backend is cycling through dead sources itself
				s.Update(func(st *SessionState) {
					st.StatusMessage = resp.Message
				})
				continue
			}
			metrics.Acquisitions.WithLabelValues("failed").Inc()
			c.fail(s, resp.Message)
			return

		default:
			c.logger.WithFields(logrus.Fields{
				"job_id": jobID,
				"status": resp.Status,
			}).Warn("Unknown job status")
		}
	}
}

// isTransientCycling recognizes the backend's "still trying other sources"
// signal inside a failed/error status
func isTransientCycling(message string) bool {
	return strings.Contains(strings.ToLower(message), "trying next source")
}

// handoff gives the resolved URL to the player and captures metadata
func (c *AcquisitionController) handoff(s *Session, data handoffData, resumeAt float64) {
	if err := s.Player().Load(s.Context(), data.URL, resumeAt); err != nil {
		metrics.Acquisitions.WithLabelValues("failed").Inc()
		c.logger.WithError(err).Error("Player refused the stream")
		c.fail(s, "The player could not open the stream")
		return
	}

	s.Update(func(st *SessionState) {
		st.Phase = models.PhasePlaying
		st.StatusMessage = ""
		st.AcquireProgress = 100
		st.StreamURL = data.URL
		st.FileName = data.FileName
		st.DisplayQuality = data.DisplayQuality
		st.ExternalSubtitles = data.Subtitles
		st.Markers = data.Markers
		if data.Next != nil {
			st.Next = data.Next
		}
	})

	metrics.Acquisitions.WithLabelValues("completed").Inc()
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"file":       data.FileName,
		"quality":    data.DisplayQuality,
		"resume_at":  resumeAt,
	}).Info("Stream handed to player")
}

// fail marks the session terminally failed with a user-facing message and
// logs the failure to the telemetry collaborator
func (c *AcquisitionController) fail(s *Session, message string) {
	if message == "" {
		message = "No source found"
	}

	if !s.Update(func(st *SessionState) {
		st.Phase = models.PhaseFailed
		st.ErrorMessage = message
		st.StatusMessage = ""
	}) {
		return
	}

	snap := s.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.telemetry.LogFault(ctx, snap.Content.ID, "acquisition", message)
	}()

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"content_id": snap.Content.ID,
		"message":    message,
	}).Error("Acquisition failed")
}

// ReportBadStream supersedes the active job with a fresh one for the same
// content, preserving the playback position for the new stream
func (c *AcquisitionController) ReportBadStream(s *Session, reason string, resumeAt float64) error {
	snap := s.Snapshot()

	if snap.JobID == "" {
		// Immediate acquisitions have no job to reference: start over
		go c.Start(s, snap.Content, resumeAt)
		return nil
	}

	resp, err := c.resolver.ReportBadStream(s.Context(), snap.JobID, reason)
	if err != nil {
		return fmt.Errorf("failed to report bad stream: %w", err)
	}
	if !resp.Success || resp.NewJobID == "" {
		return fmt.Errorf("no replacement source: %s", resp.Message)
	}

	if !s.Update(func(st *SessionState) {
		st.JobID = resp.NewJobID
		st.Phase = models.PhaseSearching
		st.StatusMessage = "Finding another source"
		st.AcquireProgress = 0
		st.ErrorMessage = ""
	}) {
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"old_job_id": snap.JobID,
		"new_job_id": resp.NewJobID,
		"reason":     reason,
	}).Info("Bad stream reported, superseding job")

	go c.pollLoop(s, resp.NewJobID, resumeAt)
	return nil
}
