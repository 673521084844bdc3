package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"horse.fit/aggregator/internal/content"
)

// ErrMalformedText marks a record whose text cannot be vectorized.
var ErrMalformedText = errors.New("malformed record text")

// Profile is a record reduced to what the similarity function needs.
type Profile struct {
	RecordID    int64
	ExternalURL string
	Terms       []TermWeight
	Norm        float64
}

// Engine scores pairs of content records in [0,1].
type Engine struct {
	vectorizer *Vectorizer
}

func NewEngine(vectorizer *Vectorizer) *Engine {
	if vectorizer == nil {
		vectorizer = NewVectorizer(nil)
	}
	return &Engine{vectorizer: vectorizer}
}

// Similarity returns 1 for identical non-empty origin URLs and the clamped
// cosine of the title+excerpt vectors otherwise.
func (e *Engine) Similarity(a, b content.Record) float64 {
	return e.Compare(e.profile(a), e.profile(b))
}

// Prepare validates a record and builds its profile for repeated comparisons.
func (e *Engine) Prepare(record content.Record) (Profile, error) {
	fields := []struct {
		name  string
		value string
	}{
		{name: "title", value: record.Title},
		{name: "excerpt", value: record.Excerpt},
		{name: "external_url", value: record.ExternalURL},
	}
	for _, field := range fields {
		if !utf8.ValidString(field.value) {
			return Profile{}, fmt.Errorf("record_id=%d %s is not valid UTF-8: %w", record.ID, field.name, ErrMalformedText)
		}
	}
	return e.profile(record), nil
}

// Compare scores two prepared profiles. Records whose ExternalURL values are
// byte-for-byte equal and non-empty score 1. It is symmetric: terms are visited
// in sorted order so the floating point sums do not depend on argument order.
func (e *Engine) Compare(left, right Profile) float64 {
	if left.ExternalURL != "" && left.ExternalURL == right.ExternalURL {
		return 1
	}
	if left.Norm == 0 || right.Norm == 0 {
		return 0
	}

	dot := 0.0
	i, j := 0, 0
	for i < len(left.Terms) && j < len(right.Terms) {
		switch strings.Compare(left.Terms[i].Term, right.Terms[j].Term) {
		case 0:
			dot += left.Terms[i].Weight * right.Terms[j].Weight
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}
	return clamp01(dot / (left.Norm * right.Norm))
}

func (e *Engine) profile(record content.Record) Profile {
	normalized := Normalize(record.Title + " " + record.Excerpt)
	terms := e.vectorizer.Vectorize(normalized).Sorted()

	sumSquares := 0.0
	for _, term := range terms {
		sumSquares += term.Weight * term.Weight
	}

	return Profile{
		RecordID:    record.ID,
		ExternalURL: record.ExternalURL,
		Terms:       terms,
		Norm:        math.Sqrt(sumSquares),
	}
}

// Cosine is the cosine similarity of two sparse vectors, clamped to [0,1].
func Cosine(left, right Vector) float64 {
	l := Profile{Terms: left.Sorted()}
	r := Profile{Terms: right.Sorted()}
	for _, t := range l.Terms {
		l.Norm += t.Weight * t.Weight
	}
	for _, t := range r.Terms {
		r.Norm += t.Weight * t.Weight
	}
	l.Norm = math.Sqrt(l.Norm)
	r.Norm = math.Sqrt(r.Norm)
	return (&Engine{}).Compare(l, r)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
