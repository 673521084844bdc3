package similarity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/aggregator/internal/content"
)

func sampleRecords() []content.Record {
	return []content.Record{
		{ID: 1, ExternalURL: "https://a.test/fed", Title: "Fed raises interest rates by quarter point", Excerpt: "The Federal Reserve raised interest rates by a quarter point on Wednesday."},
		{ID: 2, ExternalURL: "https://b.test/fed", Title: "Fed raises interest rates by quarter point", Excerpt: "The Federal Reserve raised interest rates by a quarter point Wednesday afternoon."},
		{ID: 3, ExternalURL: "https://c.test/volcano", Title: "Volcano erupts in Iceland", Excerpt: "Lava flows reached the town overnight."},
		{ID: 4, ExternalURL: "https://d.test/openai", Title: "OpenAI releases new model update", Excerpt: "OpenAI announced a major model update today with improved reasoning."},
		{ID: 5, ExternalURL: "https://e.test/openai", Title: "OpenAI ships model upgrade", Excerpt: "OpenAI has shipped a significant model upgrade with better reasoning."},
		{ID: 6, ExternalURL: "", Title: "", Excerpt: ""},
		{ID: 7, ExternalURL: "", Title: "The and of", Excerpt: "<b>it is</b>"},
	}
}

func TestSimilarityIsSymmetricAndBounded(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	records := sampleRecords()
	for _, a := range records {
		for _, b := range records {
			ab := engine.Similarity(a, b)
			ba := engine.Similarity(b, a)
			if ab != ba {
				t.Fatalf("similarity not symmetric for %d,%d: %v != %v", a.ID, b.ID, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Fatalf("similarity out of bounds for %d,%d: %v", a.ID, b.ID, ab)
			}
		}
	}
}

func TestSimilarityExactURLShortCircuit(t *testing.T) {
	t.Parallel()

	a := content.Record{ID: 1, ExternalURL: "https://x.test/a", Title: "Completely different", Excerpt: "nothing shared"}
	b := content.Record{ID: 2, ExternalURL: "https://x.test/a", Title: "Unrelated headline", Excerpt: "volcano lava"}

	assert.Equal(t, 1.0, NewEngine(nil).Similarity(a, b))
}

func TestSimilarityComparesURLsVerbatim(t *testing.T) {
	t.Parallel()

	a := content.Record{ID: 1, ExternalURL: "https://x.test/a", Title: "Volcano erupts", Excerpt: "lava flows"}
	b := content.Record{ID: 2, ExternalURL: "https://x.test/a ", Title: "Markets rally", Excerpt: "bonds slide"}

	assert.Equal(t, 0.0, NewEngine(nil).Similarity(a, b))
}

func TestSimilarityEmptyURLsDoNotShortCircuit(t *testing.T) {
	t.Parallel()

	a := content.Record{ID: 1, Title: "Volcano erupts", Excerpt: "lava flows"}
	b := content.Record{ID: 2, Title: "Markets rally", Excerpt: "bonds slide"}

	assert.Equal(t, 0.0, NewEngine(nil).Similarity(a, b))
}

func TestSimilarityNearIdenticalCoverage(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	score := NewEngine(nil).Similarity(records[0], records[1])
	assert.GreaterOrEqual(t, score, 0.75)
	assert.Less(t, score, 1.0)
}

func TestSimilarityUnrelatedIsZero(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	assert.Equal(t, 0.0, NewEngine(nil).Similarity(records[0], records[2]))
}

func TestSimilarityParaphrasedHeadlinesShareVocabulary(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	score := NewEngine(nil).Similarity(records[3], records[4])
	// Only openai, model and reasoning overlap; update/upgrade are different terms.
	assert.Greater(t, score, 0.5)
	assert.Less(t, score, 0.75)
}

func TestSimilarityZeroMagnitude(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	engine := NewEngine(nil)
	assert.Equal(t, 0.0, engine.Similarity(records[5], records[0]))
	assert.Equal(t, 0.0, engine.Similarity(records[6], records[6]))
}

func TestSimilarityIdenticalTextIsOne(t *testing.T) {
	t.Parallel()

	a := content.Record{ID: 1, ExternalURL: "https://a.test/1", Title: "Rates rise", Excerpt: "Central bank lifts rates"}
	b := a
	b.ID = 2
	b.ExternalURL = "https://b.test/2"

	assert.InDelta(t, 1.0, NewEngine(nil).Similarity(a, b), 1e-12)
}

func TestPrepareRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(nil).Prepare(content.Record{ID: 9, Title: "bad \xff\xfe bytes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedText))
}

func TestPrepareMatchesSimilarity(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	records := sampleRecords()
	left, err := engine.Prepare(records[0])
	require.NoError(t, err)
	right, err := engine.Prepare(records[1])
	require.NoError(t, err)

	assert.Equal(t, engine.Similarity(records[0], records[1]), engine.Compare(left, right))
	assert.Equal(t, int64(1), left.RecordID)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine(Vector{"a": 1, "b": 2}, Vector{"a": 2, "b": 4}), 1e-12)
	assert.Equal(t, 0.0, Cosine(Vector{"a": 1}, Vector{"b": 1}))
	assert.Equal(t, 0.0, Cosine(Vector{}, Vector{"b": 1}))
	assert.Equal(t, 0.0, Cosine(Vector{"a": 1}, Vector{"a": -1}))
}
