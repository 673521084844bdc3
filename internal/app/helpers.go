package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/cli"
	"horse.fit/aggregator/internal/config"
	"horse.fit/aggregator/internal/db"
	"horse.fit/aggregator/internal/ingest"
	"horse.fit/aggregator/internal/langdetect"
	"horse.fit/aggregator/internal/logging"
	"horse.fit/aggregator/internal/pipeline"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

// runtimeDeps bundles what every database-backed command needs.
type runtimeDeps struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func (r *runtimeDeps) Close() {
	if r == nil || r.pool == nil {
		return
	}
	_ = r.pool.Close()
}

func loadConfigAndLogger(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func connectRuntime(ctx context.Context, envLoader *cli.EnvLoader) (*runtimeDeps, error) {
	cfg, logger, err := loadConfigAndLogger(envLoader)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &runtimeDeps{cfg: cfg, logger: logger, pool: pool}, nil
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Builder: pipeline.BuilderOptions{
			MinSimilarity:       cfg.DedupMinSimilarity,
			MaxSelected:         cfg.DedupMaxSelected,
			DescriptionMaxChars: cfg.DescriptionMaxChars,
		},
		Merger: pipeline.MergerOptions{
			TopicSimilarity:  cfg.MergeTopicSimilarity,
			MinSharedSources: cfg.MergeMinSharedSources,
		},
	}
}

func newPipelineService(deps *runtimeDeps) *pipeline.Service {
	return pipeline.NewService(deps.pool, deps.logger, pipelineOptions(deps.cfg))
}

func newIngestService(deps *runtimeDeps) (*ingest.Service, error) {
	detector, err := langdetect.NewDetector(deps.cfg.LangDetectLanguagesList())
	if err != nil {
		return nil, fmt.Errorf("build language detector: %w", err)
	}
	return ingest.NewService(deps.pool, detector, deps.logger), nil
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func parseAggregationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("aggregation id must be a positive integer")
	}
	return id, nil
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatUTCTimestampPtr(value *time.Time) string {
	if value == nil || value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func contextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
