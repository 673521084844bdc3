package pipeline

import (
	"context"
	"time"

	"horse.fit/aggregator/internal/content"
)

// Run kinds recorded in the run log.
const (
	RunKindDedup = "dedup"
	RunKindMerge = "merge"
)

// Run outcomes recorded in the run log.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// AggregationDraft is everything written for one primary in one transaction.
type AggregationDraft struct {
	Aggregation  content.Aggregation
	DuplicateIDs []int64
	ProcessedAt  time.Time
}

// MergePlan describes one merge: Absorbed is folded into Survivor and deleted.
// Survivor already carries the unioned sets.
type MergePlan struct {
	Survivor content.Aggregation
	Absorbed content.Aggregation
	MergedAt time.Time
}

type RunRecord struct {
	RunID        string
	Kind         string
	WindowStart  *time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	Considered   int
	Created      int
	Duplicates   int
	Merged       int
	Failures     int
	ErrorMessage string
}

// AggregationWriter persists one primary's grouping atomically.
type AggregationWriter interface {
	CommitAggregation(ctx context.Context, draft AggregationDraft) (content.Aggregation, error)
}

// AggregationMerger persists one merge atomically.
type AggregationMerger interface {
	MergeAggregations(ctx context.Context, plan MergePlan) error
}

// Store is the record and aggregation storage the batch driver runs against.
type Store interface {
	AggregationWriter
	AggregationMerger
	LoadWorkingSet(ctx context.Context, since time.Time) ([]content.Record, error)
	ListAggregations(ctx context.Context) ([]content.Aggregation, error)
	RecordRun(ctx context.Context, run RunRecord) error
}
