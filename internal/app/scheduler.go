/**
 * @description
 * Cron scheduler setup for the reconciliation job. The job runs independently
 * of request traffic and shares state with request handlers only through the
 * repository.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/pitchside/membership-service/internal/config"
)

// Scheduler manages the reconciliation cron job.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the reconciliation job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.ReconciliationSchedule, s.jobs.RunReconciliation); err != nil {
		s.logger.Error("failed to schedule reconciliation job", "error", err)
	} else {
		s.logger.Info("scheduled reconciliation job", "schedule", s.config.ReconciliationSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
