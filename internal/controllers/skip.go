package controllers

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/models"
)

// skip affordance visibility window relative to the marker start
const (
	skipLeadIn       = 0.5  // seconds before the marker start
	skipWindowFactor = 0.75 // fraction of the marker span the button stays up
)

// SkipController evaluates skip-marker visibility on every position tick
// and performs the skip itself
type SkipController struct {
	adaptation *AdaptationController
	prefetch   *PrefetchController

	minSpan float64

	logger *logrus.Logger
}

// NewSkipController creates a new skip controller
func NewSkipController(adapt *AdaptationController, pre *PrefetchController, minSpan float64, logger *logrus.Logger) *SkipController {
	return &SkipController{
		adaptation: adapt,
		prefetch:   pre,
		minSpan:    minSpan,
		logger:     logger,
	}
}

// MarkerVisible reports whether the skip affordance for a marker should be
// on screen at the given position. Pure; re-evaluated every tick.
func (c *SkipController) MarkerVisible(m models.SkipMarker, position float64, seeking bool, dismissed map[models.MarkerType]bool) bool {
	if seeking || dismissed[m.Type] {
		return false
	}
	span := m.Span()
	if span < c.minSpan {
		return false
	}
	return position >= m.Start-skipLeadIn && position <= m.Start+skipWindowFactor*span
}

// VisibleMarkers returns the markers whose affordance is currently on
// screen, given a state snapshot
func (c *SkipController) VisibleMarkers(snap SessionState) []models.SkipMarker {
	var visible []models.SkipMarker
	for _, m := range snap.Markers {
		if c.MarkerVisible(m, snap.Position, snap.Seeking, snap.Dismissed) {
			visible = append(visible, m)
		}
	}
	return visible
}

// Skip jumps past the named segment and dismisses it for the rest of the
// session. Skipping credits without a post-credits scene hands over to the
// autoplay play-next path directly, with no countdown.
func (c *SkipController) Skip(s *Session, markerType models.MarkerType) error {
	snap := s.Snapshot()
	marker := models.FindMarker(snap.Markers, markerType)
	if marker == nil {
		return fmt.Errorf("no %s marker for this content", markerType)
	}

	if !s.Update(func(st *SessionState) {
		st.Dismissed[markerType] = true
	}) {
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"marker":     markerType,
		"end":        marker.End,
	}).Info("Skipping segment")

	if markerType == models.MarkerCredits {
		// Credits skipped early: a fresh bandwidth reading helps the
		// acquisition that usually follows
		go c.adaptation.TriggerBandwidthTest()

		if !marker.HasPostCredits && snap.Autoplay && !snap.AutoplayCancelled && snap.Next != nil {
			go c.prefetch.PlayNext(s)
			return nil
		}
	}

	if err := s.Player().Seek(marker.End); err != nil {
		return fmt.Errorf("failed to seek past %s: %w", markerType, err)
	}
	return nil
}
