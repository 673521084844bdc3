package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/globaltime"
	"horse.fit/aggregator/internal/language"
	"horse.fit/aggregator/internal/metrics"
	"horse.fit/aggregator/internal/reader"
	"horse.fit/aggregator/internal/similarity"
)

const (
	DefaultMinSimilarity       = 0.75
	DefaultMaxSelected         = 5
	DefaultDescriptionMaxChars = 1000

	confidenceSaturation       = 5
	confidenceCountWeight      = 0.3
	confidenceSimilarityWeight = 0.7
)

// Scorer prepares records once per run and compares prepared profiles.
type Scorer interface {
	Prepare(record content.Record) (similarity.Profile, error)
	Compare(left, right similarity.Profile) float64
}

type BuilderOptions struct {
	MinSimilarity       float64
	MaxSelected         int
	DescriptionMaxChars int
}

func (o BuilderOptions) withDefaults() BuilderOptions {
	if o.MinSimilarity <= 0 || o.MinSimilarity > 1 {
		o.MinSimilarity = DefaultMinSimilarity
	}
	if o.MaxSelected <= 0 {
		o.MaxSelected = DefaultMaxSelected
	}
	if o.DescriptionMaxChars <= 0 {
		o.DescriptionMaxChars = DefaultDescriptionMaxChars
	}
	return o
}

// Builder groups a working set into aggregations, one primary at a time.
type Builder struct {
	scorer Scorer
	writer AggregationWriter
	opts   BuilderOptions
	logger zerolog.Logger
}

type BuildResult struct {
	Considered   int
	Aggregations int
	Duplicates   int
	Singletons   int
	Skipped      int
	Failures     int
}

type candidate struct {
	index      int
	similarity float64
}

func NewBuilder(scorer Scorer, writer AggregationWriter, opts BuilderOptions, logger zerolog.Logger) *Builder {
	return &Builder{
		scorer: scorer,
		writer: writer,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Build walks records in the given order. Each primary's aggregation and
// duplicate flags are committed before the next primary is considered, and
// the in-memory status only changes after a successful commit.
func (b *Builder) Build(ctx context.Context, records []content.Record) (BuildResult, error) {
	var result BuildResult
	if b == nil || b.scorer == nil || b.writer == nil {
		return result, fmt.Errorf("aggregation builder is not initialized")
	}

	profiles := make([]similarity.Profile, len(records))
	usable := make([]bool, len(records))
	status := make([]content.RecordStatus, len(records))
	for i, record := range records {
		status[i] = record.Status
		if status[i] == "" {
			status[i] = content.StatusUnprocessed
		}

		profile, err := b.scorer.Prepare(record)
		if err != nil {
			result.Skipped++
			metrics.RecordError("prepare")
			b.logger.Warn().
				Err(err).
				Int64("record_id", record.ID).
				Msg("skipping record that cannot be prepared")
			continue
		}
		profiles[i] = profile
		usable[i] = true
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !usable[i] || status[i] != content.StatusUnprocessed {
			continue
		}
		result.Considered++

		candidates := b.collectCandidates(i, records, profiles, usable, status)
		if len(candidates) == 0 {
			result.Singletons++
			continue
		}

		sort.SliceStable(candidates, func(x, y int) bool {
			return candidates[x].similarity > candidates[y].similarity
		})
		selectedCount := min(len(candidates), b.opts.MaxSelected)

		draft := b.draft(records, i, candidates, selectedCount)
		aggregation, err := b.writer.CommitAggregation(ctx, draft)
		if err != nil {
			result.Failures++
			metrics.RecordError("commit")
			b.logger.Error().
				Err(err).
				Int64("record_id", records[i].ID).
				Int("candidates", len(candidates)).
				Msg("failed to persist aggregation")
			continue
		}

		status[i] = content.StatusPrimary
		scores := make([]float64, 0, len(candidates))
		for _, c := range candidates {
			status[c.index] = content.StatusDuplicate
			scores = append(scores, c.similarity)
		}
		result.Aggregations++
		result.Duplicates += len(candidates)
		metrics.RecordAggregation(len(candidates), scores)

		b.logger.Info().
			Int64("record_id", records[i].ID).
			Int64("aggregation_id", aggregation.ID).
			Int("selected", selectedCount).
			Int("overflow", len(candidates)-selectedCount).
			Float64("max_similarity", candidates[0].similarity).
			Float64("confidence", aggregation.ConfidenceScore).
			Msg("aggregation created")
	}

	return result, nil
}

func (b *Builder) collectCandidates(
	primary int,
	records []content.Record,
	profiles []similarity.Profile,
	usable []bool,
	status []content.RecordStatus,
) []candidate {
	candidates := make([]candidate, 0)
	for j := range records {
		if j == primary || !usable[j] || status[j] != content.StatusUnprocessed {
			continue
		}
		if language.Conflicts(records[primary].Language, records[j].Language) &&
			!sameOrigin(records[primary], records[j]) {
			continue
		}

		score := b.scorer.Compare(profiles[primary], profiles[j])
		if score < b.opts.MinSimilarity {
			continue
		}
		b.logger.Debug().
			Int64("record_id", records[primary].ID).
			Int64("candidate_id", records[j].ID).
			Float64("similarity", score).
			Msg("candidate accepted")
		candidates = append(candidates, candidate{index: j, similarity: score})
	}
	return candidates
}

// sameOrigin reports whether two records point at the same non-empty URL,
// which groups them whatever their language tags say.
func sameOrigin(a, b content.Record) bool {
	return a.ExternalURL != "" && a.ExternalURL == b.ExternalURL
}

func (b *Builder) draft(records []content.Record, primary int, candidates []candidate, selectedCount int) AggregationDraft {
	p := records[primary]

	sources := []string{p.SourceID}
	memberIDs := []int64{p.ID}
	duplicateIDs := make([]int64, 0, len(candidates))
	for n, c := range candidates {
		sources = append(sources, records[c.index].SourceID)
		duplicateIDs = append(duplicateIDs, records[c.index].ID)
		if n < selectedCount {
			memberIDs = append(memberIDs, records[c.index].ID)
		}
	}

	return AggregationDraft{
		Aggregation: content.Aggregation{
			Topic:            ExtractTopic(p.Title),
			Description:      describe(p, b.opts.DescriptionMaxChars),
			SourceIDs:        content.SourceSet(sources),
			ContentRecordIDs: content.RecordIDSet(memberIDs),
			PrimaryRecordID:  p.ID,
			PrimarySourceID:  p.SourceID,
			ConfidenceScore:  Confidence(len(candidates), candidates[0].similarity),
		},
		DuplicateIDs: duplicateIDs,
		ProcessedAt:  globaltime.UTC(),
	}
}

// Confidence blends how many related records were found (saturating at five)
// with the best similarity. It never decreases in either argument.
func Confidence(related int, maxSimilarity float64) float64 {
	coverage := math.Min(1, float64(max(related, 0))/confidenceSaturation)
	score := coverage*confidenceCountWeight + maxSimilarity*confidenceSimilarityWeight
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func describe(record content.Record, maxChars int) string {
	text := similarity.StripMarkup(record.Excerpt)
	if text == "" {
		text = similarity.StripMarkup(record.Title)
	}
	truncated, _ := reader.TruncateText(text, maxChars)
	return truncated
}
