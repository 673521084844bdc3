package similarity

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var markupPolicy = bluemonday.StrictPolicy()

// Normalize lowercases the input, strips markup, composes it to NFC and
// replaces every rune that is not part of a word with a space. Combining marks
// that survive composition stay attached to the word they follow.
func Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	// cases.Caser keeps state between calls and must not be shared.
	lowered := cases.Lower(language.Und).String(input)
	stripped := norm.NFC.String(html.UnescapeString(markupPolicy.Sanitize(lowered)))

	var b strings.Builder
	b.Grow(len(stripped))
	lastSpace := true
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || (unicode.IsMark(r) && !lastSpace) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// StripMarkup removes tags and decodes entities without any other rewriting.
func StripMarkup(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(markupPolicy.Sanitize(input))), " ")
}
