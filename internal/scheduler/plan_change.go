package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"billing-service/internal/config"
	"billing-service/internal/health"
)

const defaultPlanChangeSchedule = "0 */15 * * * *"

// PlanChangeApplier applies plan changes whose period has ended
type PlanChangeApplier interface {
	ApplyScheduledChanges(ctx context.Context) (int, error)
}

// PlanChangeScheduler periodically swaps in scheduled plan prices
type PlanChangeScheduler struct {
	applier PlanChangeApplier
	config  config.SchedulerConfig
	logger  *logrus.Entry
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	// serialises sweeps so a slow run never overlaps the next tick
	sweep sync.Mutex
}

// NewPlanChangeScheduler creates a new plan change scheduler
func NewPlanChangeScheduler(applier PlanChangeApplier, cfg config.SchedulerConfig, logger *logrus.Logger) *PlanChangeScheduler {
	return &PlanChangeScheduler{
		applier: applier,
		config:  cfg,
		logger:  logger.WithField("component", "plan_change_scheduler"),
	}
}

// Start registers the sweep on the configured cron schedule
func (s *PlanChangeScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if !s.config.Enabled {
		s.logger.Info("Plan change scheduler is disabled")
		return nil
	}

	schedule := normalizeSchedule(s.config.PlanChangeSchedule)
	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		s.logger.WithError(err).Error("Failed to schedule plan change job")
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.WithField("schedule", schedule).Info("Plan change scheduler started")
	return nil
}

// Stop waits for a running sweep to finish and stops the scheduler
func (s *PlanChangeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("Plan change scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *PlanChangeScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce applies due plan changes immediately
func (s *PlanChangeScheduler) RunOnce(ctx context.Context) int {
	s.sweep.Lock()
	defer s.sweep.Unlock()

	start := time.Now()
	applied, err := s.applier.ApplyScheduledChanges(ctx)
	health.RecordScheduledPlanChanges(applied)

	entry := s.logger.WithFields(logrus.Fields{
		"applied":  applied,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Scheduled plan change sweep failed")
		return applied
	}
	if applied > 0 {
		entry.Info("Applied scheduled plan changes")
	} else {
		entry.Debug("No scheduled plan changes due")
	}
	return applied
}

// normalizeSchedule accepts 5-field cron specs by adding the seconds field
func normalizeSchedule(schedule string) string {
	if strings.TrimSpace(schedule) == "" {
		return defaultPlanChangeSchedule
	}
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}
