package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/similarity"
)

var errInjected = errors.New("injected failure")

type memoryStore struct {
	mu           sync.Mutex
	records      map[int64]content.Record
	aggregations map[int64]content.Aggregation
	nextAggID    int64
	runs         []RunRecord

	loadErr       error
	failCommitFor map[int64]bool
	failMergeOf   map[int64]bool
	commits       int
}

func newMemoryStore(records ...content.Record) *memoryStore {
	store := &memoryStore{
		records:       make(map[int64]content.Record, len(records)),
		aggregations:  make(map[int64]content.Aggregation),
		failCommitFor: make(map[int64]bool),
		failMergeOf:   make(map[int64]bool),
	}
	for _, record := range records {
		if record.Status == "" {
			record.Status = content.StatusUnprocessed
		}
		store.records[record.ID] = record
	}
	return store
}

func (s *memoryStore) LoadWorkingSet(_ context.Context, since time.Time) ([]content.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]content.Record, 0, len(s.records))
	for _, record := range s.records {
		if record.Status != content.StatusUnprocessed || record.CreatedAt.Before(since) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) CommitAggregation(_ context.Context, draft AggregationDraft) (content.Aggregation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	primaryID := draft.Aggregation.PrimaryRecordID
	if s.failCommitFor[primaryID] {
		return content.Aggregation{}, errInjected
	}
	for _, id := range append([]int64{primaryID}, draft.DuplicateIDs...) {
		if s.records[id].Status != content.StatusUnprocessed {
			return content.Aggregation{}, fmt.Errorf("record %d is not unprocessed", id)
		}
	}

	s.commits++
	s.nextAggID++
	aggregation := draft.Aggregation
	aggregation.ID = s.nextAggID
	aggregation.CreatedAt = draft.ProcessedAt
	aggregation.UpdatedAt = draft.ProcessedAt
	s.aggregations[aggregation.ID] = aggregation

	processedAt := draft.ProcessedAt
	for _, id := range draft.DuplicateIDs {
		record := s.records[id]
		record.Status = content.StatusDuplicate
		record.DuplicateOfID = &primaryID
		record.ProcessedAt = &processedAt
		s.records[id] = record
	}
	primary := s.records[primaryID]
	primary.Status = content.StatusPrimary
	primary.ProcessedAt = &processedAt
	s.records[primaryID] = primary

	return aggregation, nil
}

func (s *memoryStore) ListAggregations(context.Context) ([]content.Aggregation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]content.Aggregation, 0, len(s.aggregations))
	for _, aggregation := range s.aggregations {
		out = append(out, aggregation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) MergeAggregations(_ context.Context, plan MergePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failMergeOf[plan.Absorbed.ID] {
		return errInjected
	}
	if _, ok := s.aggregations[plan.Absorbed.ID]; !ok {
		return fmt.Errorf("aggregation %d not found", plan.Absorbed.ID)
	}

	survivorPrimary := plan.Survivor.PrimaryRecordID
	absorbedPrimary := plan.Absorbed.PrimaryRecordID
	for id, record := range s.records {
		if record.DuplicateOfID != nil && *record.DuplicateOfID == absorbedPrimary {
			record.DuplicateOfID = &survivorPrimary
			s.records[id] = record
		}
	}
	if record, ok := s.records[absorbedPrimary]; ok && absorbedPrimary != survivorPrimary {
		record.Status = content.StatusDuplicate
		record.DuplicateOfID = &survivorPrimary
		s.records[absorbedPrimary] = record
	}

	s.aggregations[plan.Survivor.ID] = plan.Survivor
	delete(s.aggregations, plan.Absorbed.ID)
	return nil
}

func (s *memoryStore) RecordRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	return nil
}

func (s *memoryStore) record(id int64) content.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *memoryStore) allAggregations() []content.Aggregation {
	out, _ := s.ListAggregations(context.Background())
	return out
}

// scriptedScorer returns fixed similarities per record pair.
type scriptedScorer struct {
	scores  map[[2]int64]float64
	invalid map[int64]bool
}

func newScriptedScorer() *scriptedScorer {
	return &scriptedScorer{
		scores:  make(map[[2]int64]float64),
		invalid: make(map[int64]bool),
	}
}

func (s *scriptedScorer) set(a, b int64, score float64) {
	s.scores[pairKey(a, b)] = score
}

func (s *scriptedScorer) Prepare(record content.Record) (similarity.Profile, error) {
	if s.invalid[record.ID] {
		return similarity.Profile{}, fmt.Errorf("record %d: %w", record.ID, similarity.ErrMalformedText)
	}
	return similarity.Profile{RecordID: record.ID}, nil
}

func (s *scriptedScorer) Compare(left, right similarity.Profile) float64 {
	return s.scores[pairKey(left.RecordID, right.RecordID)]
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func record(id int64, source, title string, createdAt time.Time) content.Record {
	return content.Record{
		ID:          id,
		SourceID:    source,
		ExternalURL: fmt.Sprintf("https://%s.test/%d", source, id),
		Title:       title,
		Status:      content.StatusUnprocessed,
		CreatedAt:   createdAt,
	}
}
