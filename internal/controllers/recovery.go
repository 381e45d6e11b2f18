package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/metrics"
	"github.com/lmercadier/binger/internal/models"
	"github.com/lmercadier/binger/internal/player"
)

// RecoveryController classifies player faults and decides between a single
// automatic retry and surfacing a terminal message
type RecoveryController struct {
	acquisition *AcquisitionController
	telemetry   Telemetry
	logger      *logrus.Logger
}

// NewRecoveryController creates a new recovery controller
func NewRecoveryController(acq *AcquisitionController, tel Telemetry, logger *logrus.Logger) *RecoveryController {
	return &RecoveryController{
		acquisition: acq,
		telemetry:   tel,
		logger:      logger,
	}
}

// Classify maps a player fault onto a recovery class
func Classify(f player.Fault) models.FaultClass {
	probe := strings.ToLower(f.Code + " " + f.Message)

	for _, kw := range []string{"network", "connection", "offline", "dns"} {
		if strings.Contains(probe, kw) {
			return models.FaultClassNetwork
		}
	}
	for _, kw := range []string{"codec", "format", "container", "demux", "audio", "http", "timeout", "source error"} {
		if strings.Contains(probe, kw) {
			return models.FaultClassRetryable
		}
	}
	return models.FaultClassTerminal
}

// faultMessage renders a user-facing description per class
func faultMessage(class models.FaultClass, f player.Fault) string {
	switch class {
	case models.FaultClassNetwork:
		return "Network problem during playback. Check your connection and try again."
	case models.FaultClassRetryable:
		msg := "This file could not be played"
		if f.Message != "" {
			msg += ": " + f.Message
		}
		return msg
	default:
		if strings.Contains(strings.ToLower(f.Code+f.Message), "drm") {
			return "This content is protected and cannot be played on this device."
		}
		return "Playback failed. Try again."
	}
}

// Handle reacts to one player fault. Retryable faults consume the
// session's single retry and go through the report-bad-stream path,
// resuming at the last position; everything else surfaces to the user.
func (c *RecoveryController) Handle(s *Session, f player.Fault) {
	class := Classify(f)
	metrics.Faults.WithLabelValues(string(class)).Inc()

	snap := s.Snapshot()
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"code":       f.Code,
		"class":      class,
		"message":    f.Message,
	}).Error("Player fault")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.telemetry.LogFault(ctx, snap.Content.ID, f.Code, f.Message)
	}()

	if class == models.FaultClassRetryable {
		var retry bool
		s.Update(func(st *SessionState) {
			if !st.RetryUsed {
				st.RetryUsed = true
				retry = true
			}
		})
		if retry {
			position, _ := s.LastProgress()
			c.logger.WithFields(logrus.Fields{
				"session_id": s.ID,
				"position":   position,
			}).Info("Retrying with a fresh source")

			go func() {
				if err := c.acquisition.ReportBadStream(s, f.Code, position); err != nil {
					c.logger.WithError(err).Warn("Automatic retry failed")
					c.surface(s, class, f)
				}
			}()
			return
		}
	}

	c.surface(s, class, f)
}

func (c *RecoveryController) surface(s *Session, class models.FaultClass, f player.Fault) {
	s.Update(func(st *SessionState) {
		st.Phase = models.PhaseFailed
		st.ErrorMessage = faultMessage(class, f)
	})
}
