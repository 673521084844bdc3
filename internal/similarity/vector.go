package similarity

import (
	"math"
	"sort"
	"strings"
)

// DefaultIDFScale is the numerator of the positional IDF proxy.
const DefaultIDFScale = 1000.0

// Vector is a sparse term -> weight mapping. Absent terms weigh 0.
type Vector map[string]float64

// TermContext describes where a term sits inside one token sequence.
type TermContext struct {
	FirstPosition int
	TokenCount    int
}

// IDFStrategy supplies the inverse-document-frequency factor for a term.
type IDFStrategy interface {
	Weight(term string, ctx TermContext) float64
}

// PositionalIDF approximates IDF as log(Scale / (firstPosition + 1)).
// There is no corpus behind it: earlier terms simply weigh more.
type PositionalIDF struct {
	Scale float64
}

func (p PositionalIDF) Weight(_ string, ctx TermContext) float64 {
	scale := p.Scale
	if scale <= 0 {
		scale = DefaultIDFScale
	}
	return math.Log(scale / float64(ctx.FirstPosition+1))
}

// Vectorizer turns normalized text into TF * IDF term weights.
type Vectorizer struct {
	idf       IDFStrategy
	stopWords map[string]struct{}
}

func NewVectorizer(idf IDFStrategy) *Vectorizer {
	if idf == nil {
		idf = PositionalIDF{Scale: DefaultIDFScale}
	}
	return &Vectorizer{
		idf:       idf,
		stopWords: stopWords,
	}
}

// Vectorize expects text already passed through Normalize.
func (v *Vectorizer) Vectorize(normalized string) Vector {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return Vector{}
	}

	counts := make(map[string]int, len(tokens))
	firstPositions := make(map[string]int, len(tokens))
	for i, token := range tokens {
		if _, seen := counts[token]; !seen {
			firstPositions[token] = i
		}
		counts[token]++
	}

	total := float64(len(tokens))
	vector := make(Vector, len(counts))
	for term, count := range counts {
		if IsStopWord(term) {
			continue
		}
		tf := float64(count) / total
		vector[term] = tf * v.idf.Weight(term, TermContext{
			FirstPosition: firstPositions[term],
			TokenCount:    len(tokens),
		})
	}
	return vector
}

// TermWeight is one entry of a vector in term order.
type TermWeight struct {
	Term   string
	Weight float64
}

// Sorted returns the vector entries ordered by term.
func (v Vector) Sorted() []TermWeight {
	terms := make([]TermWeight, 0, len(v))
	for term, weight := range v {
		terms = append(terms, TermWeight{Term: term, Weight: weight})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })
	return terms
}

// IsStopWord reports whether the (normalized) token is a common function word.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "again": {}, "all": {}, "also": {}, "am": {}, "an": {},
	"and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {}, "been": {},
	"before": {}, "being": {}, "between": {}, "both": {}, "but": {}, "by": {}, "can": {}, "could": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {}, "each": {}, "few": {},
	"for": {}, "from": {}, "further": {}, "had": {}, "has": {}, "have": {}, "having": {}, "he": {},
	"her": {}, "here": {}, "hers": {}, "him": {}, "his": {}, "how": {}, "i": {}, "if": {},
	"in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "more": {},
	"most": {}, "my": {}, "no": {}, "nor": {}, "not": {}, "now": {}, "of": {}, "off": {},
	"on": {}, "once": {}, "only": {}, "or": {}, "other": {}, "our": {}, "out": {}, "over": {},
	"own": {}, "same": {}, "she": {}, "should": {}, "so": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "to": {}, "too": {}, "under": {}, "until": {}, "up": {},
	"very": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "who": {}, "whom": {}, "why": {}, "will": {}, "with": {}, "would": {}, "you": {},
	"your": {},
}
