// Package language normalizes the language codes carried on content records.
package language

import "strings"

// Undetermined is the BCP 47 tag for an unknown language.
const Undetermined = "und"

// NormalizeTag lowercases a language tag and joins its subtags with "-".
// Underscores are accepted as separators and empty subtags collapse.
// A tag with a non-letter subtag normalizes to "".
func NormalizeTag(raw string) string {
	subtags := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for _, subtag := range subtags {
		if strings.IndexFunc(subtag, func(r rune) bool { return r < 'a' || r > 'z' }) >= 0 {
			return ""
		}
	}
	return strings.Join(subtags, "-")
}

// NormalizeCode returns the ISO 639 primary subtag of raw ("en" for "en-US").
// Undetermined and malformed values yield "" so callers can fall back to detection.
func NormalizeCode(raw string) string {
	primary, _, _ := strings.Cut(NormalizeTag(raw), "-")
	if len(primary) < 2 || len(primary) > 3 || primary == Undetermined {
		return ""
	}
	return primary
}

// Conflicts reports whether two records are known to be written in different
// languages. A missing or undetermined code never conflicts.
func Conflicts(left, right string) bool {
	l, r := NormalizeCode(left), NormalizeCode(right)
	return l != "" && r != "" && l != r
}
