package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/config"
	"github.com/agrosense/agrosense/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// ReportGenerator produces and publishes the daily lifecycle report.
type ReportGenerator interface {
	GenerateDailyReport(ctx context.Context) (models.LifecycleReport, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	cfg     config.ReportingConfig
	sweeper *ExpirySweeper
	reports ReportGenerator
	logger  *zap.Logger
}

// NewScheduler creates a new scheduler instance. Schedules are evaluated in loc.
func NewScheduler(cfg config.ReportingConfig, loc *time.Location, sweeper *ExpirySweeper, reports ReportGenerator, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:    c,
		cfg:     cfg,
		sweeper: sweeper,
		reports: reports,
		logger:  logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.cfg.ExpirySweepCron, s.runExpirySweep); err != nil {
			return fmt.Errorf("schedule expiry sweep %q: %w", s.cfg.ExpirySweepCron, err)
		}
	}
	if s.reports != nil {
		if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.sendDailyReport); err != nil {
			return fmt.Errorf("schedule daily report %q: %w", s.cfg.CronSchedule, err)
		}
	}

	s.logger.Info("starting scheduler",
		zap.String("expiry_sweep", s.cfg.ExpirySweepCron),
		zap.String("daily_report", s.cfg.CronSchedule),
		zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("stopping scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler jobs still running at shutdown")
	}
}

func (s *Scheduler) runExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) sendDailyReport() {
	s.logger.Info("generating daily lifecycle report")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.reports.GenerateDailyReport(ctx); err != nil {
		s.logger.Error("daily lifecycle report incomplete", zap.Error(err))
		return
	}
	s.logger.Info("daily lifecycle report sent successfully")
}
