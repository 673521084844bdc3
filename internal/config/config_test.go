package config

import (
	"reflect"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:           "local",
		LogLevel:              "info",
		DatabaseURL:           "postgres://localhost/aggregator",
		DBMinConns:            1,
		DBMaxConns:            8,
		DedupWindowHours:      24,
		DedupMinSimilarity:    0.75,
		DedupMaxSelected:      5,
		DescriptionMaxChars:   1000,
		MergeTopicSimilarity:  0.8,
		MergeMinSharedSources: 2,
		ScheduleInterval:      time.Hour,
		LangDetectLanguages:   "en,de",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"missing database":      func(c *Config) { c.DatabaseURL = " " },
		"min above max":         func(c *Config) { c.DBMinConns = 9 },
		"zero window":           func(c *Config) { c.DedupWindowHours = 0 },
		"similarity above one":  func(c *Config) { c.DedupMinSimilarity = 1.5 },
		"zero selected":         func(c *Config) { c.DedupMaxSelected = 0 },
		"zero topic similarity": func(c *Config) { c.MergeTopicSimilarity = 0 },
		"zero shared sources":   func(c *Config) { c.MergeMinSharedSources = 0 },
		"tiny interval":         func(c *Config) { c.ScheduleInterval = time.Second },
		"single language":       func(c *Config) { c.LangDetectLanguages = "en" },
	}

	for name, mutate := range cases {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLangDetectLanguagesList(t *testing.T) {
	t.Parallel()

	cfg := Config{LangDetectLanguages: " EN, de,,en ,fr"}
	got := cfg.LangDetectLanguagesList()
	want := []string{"en", "de", "fr"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected languages: got %v want %v", got, want)
	}
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()

	cfg := Config{DedupWindowHours: 6}
	if got := cfg.DedupWindow(); got != 6*time.Hour {
		t.Fatalf("unexpected window: %s", got)
	}
	var nilCfg *Config
	if got := nilCfg.DedupWindow(); got != 24*time.Hour {
		t.Fatalf("unexpected default window: %s", got)
	}
}
