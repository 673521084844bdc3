package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/aggregator/internal/content"
)

func recentRecord(id int64, source, title, excerpt string, age time.Duration) content.Record {
	r := record(id, source, title, time.Now().UTC().Add(-age))
	r.Excerpt = excerpt
	return r
}

func fedStore() *memoryStore {
	return newMemoryStore(
		recentRecord(1, "wire", "Fed raises interest rates by quarter point",
			"The Federal Reserve raised interest rates by a quarter point on Wednesday.", 3*time.Hour),
		recentRecord(2, "daily", "Fed raises interest rates by quarter point",
			"The Federal Reserve raised interest rates by a quarter point on Wednesday afternoon.", 2*time.Hour),
		recentRecord(3, "science", "Volcano erupts near remote island village",
			"Lava flows forced evacuations on the island overnight.", time.Hour),
	)
}

func TestRunDedupEmptyWorkingSet(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, zerolog.Nop(), Options{})

	result, err := service.RunDedup(context.Background(), DedupOptions{Window: time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Aggregations)
	assert.Equal(t, 0, result.WorkingSet)
	assert.Empty(t, result.RunID)
	assert.Empty(t, store.runs)
	assert.Equal(t, 0, store.commits)
}

func TestRunDedupCreatesAggregationAndRecordsRun(t *testing.T) {
	t.Parallel()

	store := fedStore()
	service := NewService(store, zerolog.Nop(), Options{})

	result, err := service.RunDedup(context.Background(), DedupOptions{Window: 24 * time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 3, result.WorkingSet)
	assert.Equal(t, 1, result.Aggregations)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Singletons)
	_, parseErr := uuid.Parse(result.RunID)
	require.NoError(t, parseErr)

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, result.RunID, run.RunID)
	assert.Equal(t, RunKindDedup, run.Kind)
	assert.Equal(t, RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Created)
	require.NotNil(t, run.WindowStart)

	assert.True(t, store.record(2).IsDuplicate())
	assert.Equal(t, content.StatusUnprocessed, store.record(3).Status)
	assertDuplicateInvariant(t, store)
}

func TestRunDedupIsIdempotent(t *testing.T) {
	t.Parallel()

	store := fedStore()
	service := NewService(store, zerolog.Nop(), Options{})

	first, err := service.RunDedup(context.Background(), DedupOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Aggregations)

	second, err := service.RunDedup(context.Background(), DedupOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Aggregations)
	assert.Len(t, store.allAggregations(), 1)
}

func TestRunDedupHonoursWindow(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(
		recentRecord(1, "wire", "Fed raises interest rates by quarter point", "", 30*time.Hour),
		recentRecord(2, "daily", "Fed raises interest rates by quarter point", "", time.Hour),
	)
	service := NewService(store, zerolog.Nop(), Options{})

	result, err := service.RunDedup(context.Background(), DedupOptions{Window: 24 * time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 1, result.WorkingSet)
	assert.Equal(t, 0, result.Aggregations)
}

func TestRunDedupPropagatesLoadErrors(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.loadErr = errInjected
	service := NewService(store, zerolog.Nop(), Options{})

	_, err := service.RunDedup(context.Background(), DedupOptions{})

	require.ErrorIs(t, err, errInjected)
	require.Len(t, store.runs, 1)
	assert.Equal(t, RunStatusFailed, store.runs[0].Status)
	assert.Contains(t, store.runs[0].ErrorMessage, "load working set")
}

func TestRunDedupUsesInjectedScorer(t *testing.T) {
	t.Parallel()

	scorer := newScriptedScorer()
	scorer.set(1, 2, 0.99)
	store := newMemoryStore(
		recentRecord(1, "a", "Unrelated words", "", 2*time.Hour),
		recentRecord(2, "b", "Entirely different", "", time.Hour),
	)
	service := NewService(store, zerolog.Nop(), Options{Scorer: scorer})

	result, err := service.RunDedup(context.Background(), DedupOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Aggregations)
}

func TestRunMergeCoalescesAggregations(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	seedAggregation(store, content.Aggregation{
		ID: 1, Topic: "AI model pricing changes", PrimaryRecordID: 10, SourceIDs: []string{"a"}, ContentRecordIDs: []int64{10},
	})
	seedAggregation(store, content.Aggregation{
		ID: 2, Topic: "AI model pricing change", PrimaryRecordID: 20, SourceIDs: []string{"b"}, ContentRecordIDs: []int64{20},
	})
	service := NewService(store, zerolog.Nop(), Options{})

	result, err := service.RunMerge(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Aggregations)
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, []string{"a", "b"}, store.allAggregations()[0].SourceIDs)
	require.Len(t, store.runs, 1)
	assert.Equal(t, RunKindMerge, store.runs[0].Kind)
	assert.Equal(t, 1, store.runs[0].Merged)
}

func TestRunMergeNothingToDo(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	service := NewService(store, zerolog.Nop(), Options{})

	result, err := service.RunMerge(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Merged)
	assert.Empty(t, result.RunID)
	assert.Empty(t, store.runs)
}

func TestServiceNotInitialized(t *testing.T) {
	t.Parallel()

	var service *Service
	_, err := service.RunDedup(context.Background(), DedupOptions{})
	require.Error(t, err)
	_, err = service.RunMerge(context.Background())
	require.Error(t, err)
}

// gatedStore holds LoadWorkingSet open until release is closed.
type gatedStore struct {
	*memoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) LoadWorkingSet(ctx context.Context, since time.Time) ([]content.Record, error) {
	close(s.entered)
	<-s.release
	return s.memoryStore.LoadWorkingSet(ctx, since)
}

func TestRunsDoNotOverlap(t *testing.T) {
	t.Parallel()

	store := &gatedStore{memoryStore: fedStore(), entered: make(chan struct{}), release: make(chan struct{})}
	service := NewService(store, zerolog.Nop(), Options{})

	type outcome struct {
		result DedupResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := service.RunDedup(context.Background(), DedupOptions{Window: 24 * time.Hour})
		done <- outcome{result: result, err: err}
	}()
	<-store.entered

	_, err := service.RunMerge(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = service.RunDedup(context.Background(), DedupOptions{Window: 24 * time.Hour})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(store.release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, 1, first.result.Aggregations)

	_, err = service.RunMerge(context.Background())
	require.NoError(t, err)
}
