package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lmercadier/binger/internal/controllers"
	"github.com/lmercadier/binger/internal/models"
)

// Scheduler manages the periodic background tasks
type Scheduler struct {
	cron          *cron.Cron
	manager       *controllers.Manager
	db            *models.Database
	retentionDays int
	logger        *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(manager *controllers.Manager, db *models.Database, heartbeatInterval time.Duration, retentionDays int, logger *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:          cron.New(),
		manager:       manager,
		db:            db,
		retentionDays: retentionDays,
		logger:        logger,
	}

	// Heartbeat and progress flush for every live session
	spec := fmt.Sprintf("@every %ds", int(heartbeatInterval.Seconds()))
	if _, err := s.cron.AddFunc(spec, s.runHeartbeat); err != nil {
		return nil, fmt.Errorf("failed to add heartbeat job: %w", err)
	}

	// Every hour: Prune stale completed progress records
	if _, err := s.cron.AddFunc("0 * * * *", s.runPrune); err != nil {
		return nil, fmt.Errorf("failed to add prune job: %w", err)
	}

	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runHeartbeat executes the heartbeat job
func (s *Scheduler) runHeartbeat() {
	s.manager.HeartbeatAll()
}

// runPrune executes the progress cleanup job
func (s *Scheduler) runPrune() {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	pruned, err := s.db.PruneCompletedBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Progress prune failed")
		return
	}
	if pruned > 0 {
		s.logger.WithField("count", pruned).Info("Pruned completed progress records")
	}
}
