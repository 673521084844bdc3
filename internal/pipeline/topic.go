package pipeline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTopicLength caps aggregation topics in runes.
const MaxTopicLength = 500

var (
	topicPrefixPattern = regexp.MustCompile(`(?i)^\s*(breaking(\s+news)?|update[ds]?|exclusive|just\s+in|developing(\s+story)?|live|watch|video|opinion|analysis|how\s+to|top\s+\d+|\d+\s+ways\s+to)\s*[:|\-–—]\s*`)
	topicPipeSuffix    = regexp.MustCompile(`\s+\|\s+[^|]+$`)
	topicDashSuffix    = regexp.MustCompile(`\s+[-–—]\s+\S+$`)
)

// ExtractTopic derives an aggregation topic from a primary record title.
// Leading banners ("Breaking:", "Update -") and trailing "| Outlet" or
// "- Outlet" attributions are removed. The title is kept as-is when
// cleanup would leave nothing.
func ExtractTopic(title string) string {
	original := strings.Join(strings.Fields(title), " ")
	topic := original

	for {
		stripped := topicPrefixPattern.ReplaceAllString(topic, "")
		if stripped == topic {
			break
		}
		topic = stripped
	}
	topic = topicPipeSuffix.ReplaceAllString(topic, "")
	topic = topicDashSuffix.ReplaceAllString(topic, "")
	topic = strings.TrimFunc(topic, func(r rune) bool {
		return unicode.IsSpace(r) || r == '|' || r == '-' || r == ':'
	})

	if topic == "" {
		topic = original
	}
	return truncateRunes(topic, MaxTopicLength)
}

// TopicRatio scores two topics in [0,1] as matched characters over the
// longer topic length, compared case-insensitively. Matches are found by
// taking the longest common block and recursing on both sides of it.
func TopicRatio(left, right string) float64 {
	a := []rune(strings.ToLower(strings.TrimSpace(left)))
	b := []rune(strings.ToLower(strings.TrimSpace(right)))
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	// Block matching depends on argument order; fix it so the ratio is symmetric.
	if string(b) < string(a) {
		a, b = b, a
	}
	return float64(matchingCharacters(a, b)) / float64(longest)
}

func matchingCharacters(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size + matchingCharacters(a[:i], b[:j]) + matchingCharacters(a[i+size:], b[j+size:])
}

// longestCommonBlock returns the earliest longest common substring of a and b.
func longestCommonBlock(a, b []rune) (int, int, int) {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	bestI, bestJ, bestSize := 0, 0, 0

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				curr[j] = 0
				continue
			}
			curr[j] = prev[j-1] + 1
			if curr[j] > bestSize {
				bestSize = curr[j]
				bestI = i - curr[j]
				bestJ = j - curr[j]
			}
		}
		prev, curr = curr, prev
	}
	return bestI, bestJ, bestSize
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:limit]))
}
