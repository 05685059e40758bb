/**
 * @description
 * Cron scheduler for background jobs of the long-running server deployment.
 */
package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// BalanceRefresher refreshes stored balances of all linked accounts.
type BalanceRefresher interface {
	RefreshAllBalances(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	banking BalanceRefresher
	logger  *zap.Logger
	timeout time.Duration
}

func NewJobs(banking BalanceRefresher, logger *zap.Logger) *Jobs {
	return &Jobs{banking: banking, logger: logger, timeout: 10 * time.Minute}
}

// RefreshBalances triggers the balance refresh across all users.
func (j *Jobs) RefreshBalances() {
	j.logger.Info("starting balance refresh job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	updated, err := j.banking.RefreshAllBalances(ctx)
	if err != nil {
		j.logger.Error("balance refresh job failed", zap.Error(err))
		return
	}
	j.logger.Info("balance refresh job finished", zap.Int("accounts_updated", updated))
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	logger   *zap.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler. An empty schedule
// disables the balance refresh.
func (s *Scheduler) Start() {
	if s.schedule == "" {
		s.logger.Info("balance refresh job disabled")
	} else if _, err := s.cron.AddFunc(s.schedule, s.jobs.RefreshBalances); err != nil {
		s.logger.Error("failed to schedule balance refresh job", zap.Error(err))
	} else {
		s.logger.Info("scheduled balance refresh job", zap.String("schedule", s.schedule))
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
