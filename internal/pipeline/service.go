package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/globaltime"
	"horse.fit/aggregator/internal/logging"
	"horse.fit/aggregator/internal/metrics"
	"horse.fit/aggregator/internal/similarity"
)

const DefaultDedupWindow = 24 * time.Hour

// ErrRunInProgress is returned when a dedup or merge run is requested while
// another run of the same service has not finished.
var ErrRunInProgress = errors.New("another pipeline run is in progress")

type Options struct {
	Builder BuilderOptions
	Merger  MergerOptions
	// Scorer defaults to the positional TF-IDF similarity engine.
	Scorer Scorer
}

// Service is the batch driver for dedup and merge runs.
type Service struct {
	store   Store
	logger  zerolog.Logger
	scorer  Scorer
	builder BuilderOptions
	merger  MergerOptions

	// running serializes dedup and merge runs.
	running sync.Mutex
}

type DedupOptions struct {
	Window time.Duration
}

type DedupResult struct {
	RunID      string
	WorkingSet int
	BuildResult
}

type MergeRunResult struct {
	RunID        string
	Aggregations int
	MergeResult
}

func NewService(store Store, logger zerolog.Logger, opts Options) *Service {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = similarity.NewEngine(nil)
	}
	return &Service{
		store:   store,
		logger:  logger,
		scorer:  scorer,
		builder: opts.Builder.withDefaults(),
		merger:  opts.Merger.withDefaults(),
	}
}

// RunDedup groups unprocessed records created inside the window. The
// returned Aggregations count is the number of aggregations created. An
// empty working set is not recorded as a run and leaves RunID empty.
func (s *Service) RunDedup(ctx context.Context, opts DedupOptions) (DedupResult, error) {
	if s == nil || s.store == nil {
		return DedupResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if !s.running.TryLock() {
		return DedupResult{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	window := opts.Window
	if window <= 0 {
		window = DefaultDedupWindow
	}

	startedAt := globaltime.UTC()
	since := startedAt.Add(-window)
	result := DedupResult{RunID: uuid.NewString()}
	logger := logging.WithRun(s.logger, RunKindDedup, result.RunID)

	records, err := s.store.LoadWorkingSet(ctx, since)
	if err != nil {
		err = fmt.Errorf("load working set: %w", err)
		s.finishRun(ctx, logger, RunRecord{
			RunID:       result.RunID,
			Kind:        RunKindDedup,
			WindowStart: &since,
			StartedAt:   startedAt,
		}, err)
		return result, err
	}
	result.WorkingSet = len(records)
	metrics.WorkingSetSize.Observe(float64(len(records)))
	if len(records) == 0 {
		logger.Debug().Time("window_start", since).Msg("working set is empty")
		result.RunID = ""
		return result, nil
	}

	builder := NewBuilder(s.scorer, s.store, s.builder, logger)
	build, buildErr := builder.Build(ctx, records)
	result.BuildResult = build

	s.finishRun(ctx, logger, RunRecord{
		RunID:       result.RunID,
		Kind:        RunKindDedup,
		WindowStart: &since,
		StartedAt:   startedAt,
		Considered:  build.Considered,
		Created:     build.Aggregations,
		Duplicates:  build.Duplicates,
		Failures:    build.Failures + build.Skipped,
	}, buildErr)
	if buildErr != nil {
		return result, fmt.Errorf("build aggregations: %w", buildErr)
	}

	logger.Info().
		Int("working_set", result.WorkingSet).
		Int("considered", build.Considered).
		Int("aggregations", build.Aggregations).
		Int("duplicates", build.Duplicates).
		Int("singletons", build.Singletons).
		Int("skipped", build.Skipped).
		Int("failures", build.Failures).
		Msg("dedup run finished")
	return result, nil
}

// RunMerge coalesces related aggregations and returns the number of merges.
func (s *Service) RunMerge(ctx context.Context) (MergeRunResult, error) {
	if s == nil || s.store == nil {
		return MergeRunResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if !s.running.TryLock() {
		return MergeRunResult{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	startedAt := globaltime.UTC()
	result := MergeRunResult{RunID: uuid.NewString()}
	logger := logging.WithRun(s.logger, RunKindMerge, result.RunID)

	aggregations, err := s.store.ListAggregations(ctx)
	if err != nil {
		err = fmt.Errorf("list aggregations: %w", err)
		s.finishRun(ctx, logger, RunRecord{RunID: result.RunID, Kind: RunKindMerge, StartedAt: startedAt}, err)
		return result, err
	}
	result.Aggregations = len(aggregations)
	if len(aggregations) < 2 {
		logger.Debug().Int("aggregations", len(aggregations)).Msg("nothing to merge")
		result.RunID = ""
		return result, nil
	}

	merger := NewMerger(s.store, s.merger, logger)
	merged, mergeErr := merger.Merge(ctx, aggregations)
	result.MergeResult = merged

	s.finishRun(ctx, logger, RunRecord{
		RunID:      result.RunID,
		Kind:       RunKindMerge,
		StartedAt:  startedAt,
		Considered: merged.Compared,
		Merged:     merged.Merged,
		Failures:   merged.Failures,
	}, mergeErr)
	if mergeErr != nil {
		return result, fmt.Errorf("merge aggregations: %w", mergeErr)
	}

	logger.Info().
		Int("aggregations", result.Aggregations).
		Int("compared", merged.Compared).
		Int("merged", merged.Merged).
		Int("failures", merged.Failures).
		Msg("merge run finished")
	return result, nil
}

func (s *Service) finishRun(ctx context.Context, logger zerolog.Logger, run RunRecord, runErr error) {
	run.FinishedAt = globaltime.UTC()
	run.Status = RunStatusSuccess
	if runErr != nil {
		run.Status = RunStatusFailed
		run.ErrorMessage = runErr.Error()
		logger.Error().Err(runErr).Msg("run failed")
	}
	metrics.RecordRun(run.Kind, run.Status, run.FinishedAt.Sub(run.StartedAt))

	// The run log outlives a cancelled run context.
	if err := s.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run")
	}
}
