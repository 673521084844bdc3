package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"AGG_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"AGG_DB_MAX_CONNS" default:"8"`

	DedupWindowHours      int     `envconfig:"DEDUP_WINDOW_HOURS" default:"24"`
	DedupMinSimilarity    float64 `envconfig:"DEDUP_MIN_SIMILARITY" default:"0.75"`
	DedupMaxSelected      int     `envconfig:"DEDUP_MAX_SELECTED" default:"5"`
	DescriptionMaxChars   int     `envconfig:"DESCRIPTION_MAX_CHARS" default:"1000"`
	MergeTopicSimilarity  float64 `envconfig:"MERGE_TOPIC_SIMILARITY" default:"0.8"`
	MergeMinSharedSources int     `envconfig:"MERGE_MIN_SHARED_SOURCES" default:"2"`

	ScheduleInterval    time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"1h"`
	LangDetectLanguages string        `envconfig:"LANGDETECT_LANGUAGES" default:"en,de,fr,es,it,pt,nl"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("AGG_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("AGG_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("AGG_DB_MIN_CONNS (%d) cannot exceed AGG_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DedupWindowHours < 1 {
		return fmt.Errorf("DEDUP_WINDOW_HOURS must be >= 1")
	}
	if c.DedupMinSimilarity <= 0 || c.DedupMinSimilarity > 1 {
		return fmt.Errorf("DEDUP_MIN_SIMILARITY must be in (0,1]")
	}
	if c.DedupMaxSelected < 1 {
		return fmt.Errorf("DEDUP_MAX_SELECTED must be >= 1")
	}
	if c.DescriptionMaxChars < 1 {
		return fmt.Errorf("DESCRIPTION_MAX_CHARS must be >= 1")
	}
	if c.MergeTopicSimilarity <= 0 || c.MergeTopicSimilarity > 1 {
		return fmt.Errorf("MERGE_TOPIC_SIMILARITY must be in (0,1]")
	}
	if c.MergeMinSharedSources < 1 {
		return fmt.Errorf("MERGE_MIN_SHARED_SOURCES must be >= 1")
	}
	if c.ScheduleInterval < time.Minute {
		return fmt.Errorf("SCHEDULE_INTERVAL must be >= 1m")
	}
	if len(c.LangDetectLanguagesList()) == 1 {
		return fmt.Errorf("LANGDETECT_LANGUAGES needs at least two languages or none")
	}
	return nil
}

// DedupWindow is the trailing ingestion window considered by one dedup run.
func (c *Config) DedupWindow() time.Duration {
	if c == nil || c.DedupWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DedupWindowHours) * time.Hour
}

func (c *Config) LangDetectLanguagesList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.LangDetectLanguages, ",")
	codes := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, exists := seen[code]; exists {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
