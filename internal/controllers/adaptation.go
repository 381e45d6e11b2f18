package controllers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/metrics"
	"github.com/lmercadier/binger/internal/services/resolver"
)

// AdaptationController watches buffering interruptions and requests a
// lower-bitrate variant when they cluster inside a sliding window
type AdaptationController struct {
	resolver  Resolver
	telemetry Telemetry

	window    time.Duration
	threshold int

	logger *logrus.Logger
	now    func() time.Time
}

// NewAdaptationController creates a new adaptation controller
func NewAdaptationController(res Resolver, tel Telemetry, window time.Duration, threshold int, logger *logrus.Logger) *AdaptationController {
	return &AdaptationController{
		resolver:  res,
		telemetry: tel,
		window:    window,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// OnBuffering records one buffering interruption and triggers a quality
// fallback when the window fills
func (c *AdaptationController) OnBuffering(s *Session) {
	metrics.BufferEvents.Inc()

	var fire bool
	ok := s.Update(func(st *SessionState) {
		now := c.now()
		st.BufferEvents = append(st.BufferEvents, now)
		st.BufferEvents = pruneEvents(st.BufferEvents, now.Add(-c.window))
		if len(st.BufferEvents) >= c.threshold {
			fire = true
			// Clear the window so the next fallback needs fresh evidence
			st.BufferEvents = nil
		}
	})
	if !ok || !fire {
		return
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"threshold":  c.threshold,
	}).Warn("Repeated buffering, requesting quality fallback")

	go c.fallback(s)
}

// pruneEvents drops timestamps older than the cutoff
func pruneEvents(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// fallback asks the backend for a lower-quality stream and swaps the
// player onto it at the current position
func (c *AdaptationController) fallback(s *Session) {
	snap := s.Snapshot()

	resp, err := c.resolver.QualityFallback(s.Context(), resolver.FallbackRequest{
		ContentID:              snap.Content.ID,
		Type:                   snap.Content.Type,
		CurrentDurationMinutes: int(snap.Duration / 60),
	})
	if err != nil {
		metrics.QualityFallbacks.WithLabelValues("failed").Inc()
		c.logger.WithError(err).Warn("Quality fallback request failed")
		return
	}
	if resp.URL == "" {
		metrics.QualityFallbacks.WithLabelValues("unavailable").Inc()
		c.logger.WithField("session_id", s.ID).Info("No lower quality available")
		return
	}
	if err := resolver.ValidateStreamURL(resp.URL); err != nil {
		metrics.QualityFallbacks.WithLabelValues("failed").Inc()
		c.logger.WithError(err).Error("Fallback stream has an unusable URL")
		return
	}

	if err := s.Player().Load(s.Context(), resp.URL, snap.Position); err != nil {
		metrics.QualityFallbacks.WithLabelValues("failed").Inc()
		c.logger.WithError(err).Error("Player refused the fallback stream")
		return
	}

	s.Update(func(st *SessionState) {
		st.StreamURL = resp.URL
		if resp.DisplayQuality != "" {
			st.DisplayQuality = resp.DisplayQuality
		}
		if resp.JobID != "" {
			st.JobID = resp.JobID
		}
	})

	metrics.QualityFallbacks.WithLabelValues("applied").Inc()
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"quality":    resp.DisplayQuality,
		"position":   snap.Position,
	}).Info("Switched to lower quality stream")

	go c.TriggerBandwidthTest()
}

// TriggerBandwidthTest kicks off a background bandwidth measurement so the
// next acquisition starts from a realistic estimate
func (c *AdaptationController) TriggerBandwidthTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	if err := c.telemetry.RunBandwidthTest(ctx); err != nil {
		c.logger.WithError(err).Debug("Bandwidth test failed")
	}
}
