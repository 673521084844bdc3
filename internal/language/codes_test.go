package language

import "testing"

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" EN_us ": "en-us",
		"zh-Hans": "zh-hans",
		"en--US":  "en-us",
		"en_123":  "",
		"pt-BR-x": "pt-br-x",
		"   ":     "",
	}
	for raw, want := range cases {
		if got := NormalizeTag(raw); got != want {
			t.Fatalf("NormalizeTag(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		" EN-us ": "en",
		"zh":      "zh",
		"fil-PH":  "fil",
		" ":       "",
		"und":     "",
		"english": "",
		"e":       "",
	}
	for raw, want := range cases {
		if got := NormalizeCode(raw); got != want {
			t.Fatalf("NormalizeCode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestConflicts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		left, right string
		want        bool
	}{
		{left: "en", right: "de", want: true},
		{left: "en-US", right: "en_gb", want: false},
		{left: "en", right: "", want: false},
		{left: "und", right: "fr", want: false},
		{left: "", right: "", want: false},
	}
	for _, tc := range cases {
		if got := Conflicts(tc.left, tc.right); got != tc.want {
			t.Fatalf("Conflicts(%q, %q) = %v, want %v", tc.left, tc.right, got, tc.want)
		}
	}
}
