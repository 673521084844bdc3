package langdetect

import "testing"

func TestNewDetectorRejectsBadLanguageSets(t *testing.T) {
	t.Parallel()

	if _, err := NewDetector([]string{"en"}); err == nil {
		t.Fatalf("expected error for a single language")
	}
	if _, err := NewDetector([]string{"en", "zz"}); err == nil {
		t.Fatalf("expected error for an unknown code")
	}
}

func TestDetectorDetectsConfiguredLanguages(t *testing.T) {
	t.Parallel()

	detector, err := NewDetector([]string{"en", "de"})
	if err != nil {
		t.Fatalf("NewDetector returned error: %v", err)
	}

	cases := map[string]string{
		"The Federal Reserve raised interest rates by a quarter point on Wednesday.": "en",
		"Die Zentralbank hat die Zinsen am Mittwoch erneut deutlich angehoben.":      "de",
		"ok":    "",
		"   ":   "",
		"12345": "",
	}
	for text, want := range cases {
		if got := detector.DetectISO6391(text); got != want {
			t.Fatalf("DetectISO6391(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestNilDetector(t *testing.T) {
	t.Parallel()

	var detector *Detector
	if got := detector.DetectISO6391("The Federal Reserve raised rates"); got != "" {
		t.Fatalf("expected empty result from nil detector, got %q", got)
	}
}
