package langdetect

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

const minLetters = 6

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Detector identifies the language of short texts as ISO 639-1 codes.
type Detector struct {
	detector lingua.LanguageDetector
}

// NewDetector builds a detector restricted to the given ISO 639-1 codes.
// An empty list means every language lingua knows.
func NewDetector(codes []string) (*Detector, error) {
	builder := lingua.NewLanguageDetectorBuilder()
	if len(codes) == 0 {
		return &Detector{detector: builder.FromAllLanguages().Build()}, nil
	}

	languages := make([]lingua.Language, 0, len(codes))
	for _, code := range codes {
		language := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(strings.ToUpper(strings.TrimSpace(code))))
		if language == lingua.Unknown {
			return nil, fmt.Errorf("unsupported language code %q", code)
		}
		languages = append(languages, language)
	}
	if len(languages) < 2 {
		return nil, fmt.Errorf("at least two languages are required, got %d", len(languages))
	}

	detector := builder.
		FromLanguages(languages...).
		WithPreloadedLanguageModels().
		Build()
	return &Detector{detector: detector}, nil
}

// DetectISO6391 returns a lowercase ISO 639-1 code, or "" when the text is too
// short or no language is confident enough.
func (d *Detector) DetectISO6391(text string) string {
	if d == nil || d.detector == nil {
		return ""
	}

	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := d.detector.DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// DetectISO6391 detects against every supported language.
func DetectISO6391(text string) string {
	defaultOnce.Do(func() {
		defaultDetector, _ = NewDetector(nil)
	})
	return defaultDetector.DetectISO6391(text)
}
