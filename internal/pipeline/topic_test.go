package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractTopic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		want  string
	}{
		{name: "breaking prefix", title: "Breaking: Fed raises rates", want: "Fed raises rates"},
		{name: "prefix and outlet suffix", title: "BREAKING NEWS - Fed raises rates | Reuters", want: "Fed raises rates"},
		{name: "how to", title: "How to: Build a home lab", want: "Build a home lab"},
		{name: "top n", title: "Top 10: Laptops for students", want: "Laptops for students"},
		{name: "dash outlet", title: "Fed raises rates - Bloomberg", want: "Fed raises rates"},
		{name: "stacked prefixes", title: "  Update:  Breaking:  Storm  hits coast ", want: "Storm hits coast"},
		{name: "dash inside title kept", title: "Apple - Google deal", want: "Apple - Google deal"},
		{name: "prefix-like word kept", title: "Videogames rise: sales up", want: "Videogames rise: sales up"},
		{name: "only boilerplate", title: "Breaking:", want: "Breaking:"},
		{name: "empty", title: "   ", want: ""},
	}

	for _, tc := range cases {
		if got := ExtractTopic(tc.title); got != tc.want {
			t.Fatalf("%s: ExtractTopic(%q) = %q, want %q", tc.name, tc.title, got, tc.want)
		}
	}
}

func TestExtractTopicTruncates(t *testing.T) {
	t.Parallel()

	got := ExtractTopic(strings.Repeat("ü", MaxTopicLength+100))
	if n := utf8.RuneCountInString(got); n != MaxTopicLength {
		t.Fatalf("expected %d runes, got %d", MaxTopicLength, n)
	}
}

func TestTopicRatio(t *testing.T) {
	t.Parallel()

	if got := TopicRatio("AI model pricing changes", "AI model pricing change"); got < 0.95 || got > 0.96 {
		t.Fatalf("unexpected near-identical ratio: %f", got)
	}
	if got := TopicRatio("Fed Raises Rates", "fed raises rates"); got != 1 {
		t.Fatalf("expected case-insensitive ratio 1, got %f", got)
	}
	if got := TopicRatio("abc", "xyz"); got != 0 {
		t.Fatalf("expected disjoint ratio 0, got %f", got)
	}
	if got := TopicRatio("", ""); got != 0 {
		t.Fatalf("expected empty ratio 0, got %f", got)
	}
	if got := TopicRatio("abcd", "bcda"); got != 0.75 {
		t.Fatalf("expected ratio 0.75, got %f", got)
	}
}

func TestTopicRatioIsSymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"Storm hits coast", "Storm batters the coast"},
		{"OpenAI ships model upgrade", "OpenAI releases new model update"},
		{"a", "abc"},
	}
	for _, pair := range pairs {
		if TopicRatio(pair[0], pair[1]) != TopicRatio(pair[1], pair[0]) {
			t.Fatalf("ratio is not symmetric for %q and %q", pair[0], pair[1])
		}
	}
}
