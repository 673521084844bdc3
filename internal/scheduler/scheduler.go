package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/pipeline"
)

// Runner is the batch driver invoked on every tick.
type Runner interface {
	RunDedup(ctx context.Context, opts pipeline.DedupOptions) (pipeline.DedupResult, error)
	RunMerge(ctx context.Context) (pipeline.MergeRunResult, error)
}

// Scheduler runs dedup followed by merge on a fixed interval. Runs never
// overlap; ticks missed during a long run collapse into one.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	window   time.Duration
	logger   zerolog.Logger
}

func New(runner Runner, interval, window time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		window:   window,
		logger:   logger,
	}
}

// Run blocks until ctx is done. The first run starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.runner == nil {
		return fmt.Errorf("scheduler is not initialized")
	}
	if s.interval <= 0 {
		return fmt.Errorf("schedule interval must be > 0")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("window", s.window).
		Msg("scheduler started")

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one dedup and one merge. Failures are logged and retried on the
// next tick.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	dedup, err := s.runner.RunDedup(ctx, pipeline.DedupOptions{Window: s.window})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.logger.Warn().Msg("skipping scheduled run, another run is in progress")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", dedup.RunID).Msg("scheduled dedup run failed")
	}

	if ctx.Err() != nil {
		return
	}
	merge, err := s.runner.RunMerge(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		s.logger.Warn().Msg("skipping scheduled merge, another run is in progress")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", merge.RunID).Msg("scheduled merge run failed")
		return
	}

	s.logger.Info().
		Int("aggregations_created", dedup.Aggregations).
		Int("aggregations_merged", merge.Merged).
		Msg("scheduled run finished")
}
