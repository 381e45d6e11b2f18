package controllers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/lmercadier/binger/internal/models"
)

// Completion thresholds as a fraction of known duration
const (
	episodeCompleteAt = 0.95
	movieCompleteAt   = 0.90
)

// ProgressController persists watch progress locally and mirrors it to the
// session-tracking collaborator. Every remote call is best effort.
type ProgressController struct {
	store     ProgressStore
	telemetry Telemetry
	logger    *logrus.Logger
}

// NewProgressController creates a new progress controller
func NewProgressController(store ProgressStore, tel Telemetry, logger *logrus.Logger) *ProgressController {
	return &ProgressController{
		store:     store,
		telemetry: tel,
		logger:    logger,
	}
}

// Completed applies the type-dependent completion threshold
func Completed(t models.ContentType, position, duration float64) bool {
	if duration <= 0 {
		return false
	}
	threshold := movieCompleteAt
	if t == models.ContentTypeEpisode {
		threshold = episodeCompleteAt
	}
	return position/duration >= threshold
}

// Heartbeat sends the periodic liveness signal and flushes progress.
// Runs on the shared 30s schedule.
func (c *ProgressController) Heartbeat(s *Session) {
	snap := s.Snapshot()
	if snap.Phase != models.PhasePlaying {
		return
	}

	ctx, cancel := context.WithTimeout(s.Context(), 10*time.Second)
	defer cancel()

	if err := c.telemetry.Heartbeat(ctx); err != nil {
		c.logger.WithError(err).Debug("Heartbeat failed")
	}

	c.Flush(s)
}

// Flush writes the current position to local storage and mirrors it to the
// collaborator
func (c *ProgressController) Flush(s *Session) {
	snap := s.Snapshot()
	if snap.Duration <= 0 {
		return
	}
	c.record(s.Context(), snap.Content, snap.Position, snap.Duration)
}

// FinalFlush persists progress from values captured before the player was
// released. Safe to call after teardown; it takes no session snapshot.
func (c *ProgressController) FinalFlush(content models.ContentRef, position, duration float64) {
	if duration <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.record(ctx, content, position, duration)
}

func (c *ProgressController) record(ctx context.Context, content models.ContentRef, position, duration float64) {
	record := &models.ProgressRecord{
		ContentID: content.ID,
		Type:      content.Type,
		Position:  position,
		Duration:  duration,
		Completed: Completed(content.Type, position, duration),
		UpdatedAt: time.Now(),
	}

	if err := c.store.UpsertProgress(record); err != nil {
		c.logger.WithError(err).Warn("Could not persist progress")
	}
	if err := c.telemetry.SyncProgress(ctx, record); err != nil {
		c.logger.WithError(err).Debug("Progress sync failed")
	}
}

// ResumePosition returns the saved position to resume from, zero when the
// content is unwatched or already completed
func (c *ProgressController) ResumePosition(contentID string) float64 {
	record, err := c.store.GetProgress(contentID)
	if err == bolthold.ErrNotFound {
		return 0
	}
	if err != nil {
		c.logger.WithError(err).Warn("Could not read saved progress")
		return 0
	}
	if record.Completed {
		return 0
	}
	return record.Position
}
