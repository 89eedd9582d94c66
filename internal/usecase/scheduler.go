package usecase

import (
	"context"
	"log/slog"
	"time"

	"TenderRadar/internal/ports"
)

// Scheduler runs HarvestAll on every tick of the driver and logs the run
// totals.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the harvest job with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		stats := s.pipeline.HarvestAll(ctx)
		s.logger.Info("scheduled run done",
			"trigger", trigger.Format(time.RFC3339),
			"persisted", stats.Persisted,
			"dispatched", stats.Dispatched)
	})
}

// Run starts the driver, blocks until ctx is cancelled and then waits up to
// grace for a running harvest to finish.
func (s *Scheduler) Run(ctx context.Context, grace time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stop tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
