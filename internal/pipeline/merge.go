package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/globaltime"
	"horse.fit/aggregator/internal/metrics"
)

const (
	DefaultMergeTopicSimilarity  = 0.8
	DefaultMergeMinSharedSources = 2
)

// Merge triggers, also used as metric labels.
const (
	MergeReasonTopic   = "topic"
	MergeReasonSources = "sources"
)

type MergerOptions struct {
	TopicSimilarity  float64
	MinSharedSources int
}

func (o MergerOptions) withDefaults() MergerOptions {
	if o.TopicSimilarity <= 0 || o.TopicSimilarity > 1 {
		o.TopicSimilarity = DefaultMergeTopicSimilarity
	}
	if o.MinSharedSources <= 0 {
		o.MinSharedSources = DefaultMergeMinSharedSources
	}
	return o
}

// Merger coalesces aggregations that describe the same topic.
type Merger struct {
	store  AggregationMerger
	opts   MergerOptions
	logger zerolog.Logger
}

type MergeResult struct {
	Compared int
	Merged   int
	Failures int
}

func NewMerger(store AggregationMerger, opts MergerOptions, logger zerolog.Logger) *Merger {
	return &Merger{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Merge compares every unordered pair once, lower id first. Merge decisions
// use the aggregations as loaded, so a pass is not transitive: an aggregation
// that would only match through a freshly absorbed one waits for the next pass.
func (m *Merger) Merge(ctx context.Context, aggregations []content.Aggregation) (MergeResult, error) {
	var result MergeResult
	if m == nil || m.store == nil {
		return result, fmt.Errorf("aggregation merger is not initialized")
	}

	loaded := make([]content.Aggregation, len(aggregations))
	copy(loaded, aggregations)
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].ID < loaded[j].ID
	})

	current := make([]content.Aggregation, len(loaded))
	copy(current, loaded)
	deleted := make([]bool, len(loaded))

	for i := range loaded {
		if deleted[i] {
			continue
		}
		for j := i + 1; j < len(loaded); j++ {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if deleted[j] {
				continue
			}
			result.Compared++

			reason, ok := m.shouldMerge(loaded[i], loaded[j])
			if !ok {
				continue
			}

			plan := MergePlan{
				Survivor: absorb(current[i], current[j]),
				Absorbed: current[j],
				MergedAt: globaltime.UTC(),
			}
			plan.Survivor.UpdatedAt = plan.MergedAt
			if err := m.store.MergeAggregations(ctx, plan); err != nil {
				result.Failures++
				metrics.RecordError("merge")
				m.logger.Error().
					Err(err).
					Int64("aggregation_id", current[i].ID).
					Int64("absorbed_aggregation_id", current[j].ID).
					Msg("failed to merge aggregations")
				continue
			}

			current[i] = plan.Survivor
			deleted[j] = true
			result.Merged++
			metrics.RecordMerge(reason)

			m.logger.Info().
				Int64("aggregation_id", current[i].ID).
				Int64("absorbed_aggregation_id", plan.Absorbed.ID).
				Str("reason", reason).
				Int("sources", len(current[i].SourceIDs)).
				Int("records", len(current[i].ContentRecordIDs)).
				Msg("aggregations merged")
		}
	}

	return result, nil
}

func (m *Merger) shouldMerge(a, b content.Aggregation) (string, bool) {
	if TopicRatio(a.Topic, b.Topic) >= m.opts.TopicSimilarity {
		return MergeReasonTopic, true
	}
	if sharedSources(a.SourceIDs, b.SourceIDs) >= m.opts.MinSharedSources {
		return MergeReasonSources, true
	}
	return "", false
}

// absorb returns survivor with absorbed's sets folded in. A survivor that was
// already consumed goes back to pending when absorbed was still pending, so
// the new members reach the generation step.
func absorb(survivor, absorbed content.Aggregation) content.Aggregation {
	merged := survivor
	merged.SourceIDs = content.SourceSet(survivor.SourceIDs, absorbed.SourceIDs)
	merged.ContentRecordIDs = content.RecordIDSet(survivor.ContentRecordIDs, absorbed.ContentRecordIDs)
	merged.ConfidenceScore = math.Max(survivor.ConfidenceScore, absorbed.ConfidenceScore)
	if absorbed.ProcessedAt == nil {
		merged.ProcessedAt = nil
	}
	return merged
}

func sharedSources(left, right []string) int {
	set := make(map[string]struct{}, len(left))
	for _, id := range left {
		set[id] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(right))
	for _, id := range right {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			shared++
		}
	}
	return shared
}
