package relations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler re-indexes the configured table on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler schedules job with a standard five field cron expression or a
// descriptor such as @hourly. Runs that overlap a still running one are skipped.
func NewScheduler(ctx context.Context, spec string, job func(context.Context) error, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		logger.Info("Scheduled indexing started", "schedule", spec)
		if err := job(ctx); err != nil {
			logger.Error("Scheduled indexing failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule creates a scheduler that runs IndexTable.
func (s *Service) Schedule(ctx context.Context, spec string) (*Scheduler, error) {
	return NewScheduler(ctx, spec, func(ctx context.Context) error {
		_, err := s.IndexTable(ctx)
		return err
	}, s.logger)
}
