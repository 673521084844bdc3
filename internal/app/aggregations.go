package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/aggregator/internal/cli"
	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/db"
	"horse.fit/aggregator/internal/globaltime"
)

func runAggregations(args []string) int {
	fs := flag.NewFlagSet("aggregations", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	status := fs.String("status", db.AggregationStatusPending, "Filter: pending, processed or all")
	limit := fs.Int("limit", 50, "Maximum aggregations to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "aggregations does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	statusFilter := strings.ToLower(strings.TrimSpace(*status))
	switch statusFilter {
	case db.AggregationStatusPending, db.AggregationStatusProcessed, db.AggregationStatusAll:
	default:
		fmt.Fprintln(os.Stderr, "--status must be pending, processed or all")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel := contextWithTimeout(*timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	items, err := deps.pool.QueryAggregations(ctx, db.AggregationFilter{Status: statusFilter, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query aggregations: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, agg := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", agg.ID),
			truncateForTable(agg.Topic, 60),
			fmt.Sprintf("%d", len(agg.ContentRecordIDs)),
			strings.Join(agg.SourceIDs, ","),
			fmt.Sprintf("%.2f", agg.ConfidenceScore),
			formatUTCTimestamp(agg.CreatedAt),
			formatUTCTimestampPtr(agg.ProcessedAt),
		})
	}
	if err := writeTable([]string{"id", "topic", "records", "sources", "confidence", "created_at", "processed_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runAggregationDetail(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: aggregator show [flags] <aggregation-id>")
		return 2
	}
	id, err := parseAggregationID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel := contextWithTimeout(*timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	detail, err := deps.pool.GetAggregationDetail(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrAggregationNotFound) {
			fmt.Fprintf(os.Stderr, "Aggregation %d not found\n", id)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load aggregation: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(detail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	agg := detail.Aggregation
	summary := [][]string{
		{"id", fmt.Sprintf("%d", agg.ID)},
		{"topic", agg.Topic},
		{"primary_record_id", fmt.Sprintf("%d", agg.PrimaryRecordID)},
		{"primary_source_id", agg.PrimarySourceID},
		{"sources", strings.Join(agg.SourceIDs, ",")},
		{"confidence", fmt.Sprintf("%.3f", agg.ConfidenceScore)},
		{"created_at", formatUTCTimestamp(agg.CreatedAt)},
		{"updated_at", formatUTCTimestamp(agg.UpdatedAt)},
		{"processed_at", formatUTCTimestampPtr(agg.ProcessedAt)},
		{"description", truncateForTable(agg.Description, 120)},
	}
	if err := writeTable([]string{"field", "value"}, summary); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	fmt.Println()
	rows := make([][]string, 0, len(detail.Records)+len(detail.Overflow))
	for _, record := range detail.Records {
		rows = append(rows, recordRow(record, "member"))
	}
	for _, record := range detail.Overflow {
		rows = append(rows, recordRow(record, "overflow"))
	}
	if err := writeTable([]string{"record_id", "role", "source", "status", "lang", "title", "url"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func recordRow(record content.Record, role string) []string {
	return []string{
		fmt.Sprintf("%d", record.ID),
		role,
		record.SourceID,
		string(record.Status),
		record.Language,
		truncateForTable(record.Title, 60),
		record.ExternalURL,
	}
}

func runMarkProcessed(args []string) int {
	fs := flag.NewFlagSet("mark-processed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: aggregator mark-processed [flags] <aggregation-id>...")
		return 2
	}
	ids := make([]int64, 0, fs.NArg())
	for _, raw := range fs.Args() {
		id, err := parseAggregationID(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		ids = append(ids, id)
	}

	ctx, cancel := contextWithTimeout(*timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	exitCode := 0
	now := globaltime.UTC()
	for _, id := range ids {
		agg, err := deps.pool.MarkAggregationProcessed(ctx, id, now)
		if err != nil {
			if errors.Is(err, db.ErrAggregationNotFound) {
				fmt.Fprintf(os.Stderr, "Aggregation %d not found\n", id)
			} else {
				deps.logger.Error().Err(err).Int64("aggregation_id", id).Msg("mark processed failed")
				fmt.Fprintf(os.Stderr, "Failed to mark aggregation %d: %v\n", id, err)
			}
			exitCode = 1
			continue
		}
		fmt.Printf("aggregation_id=%d processed_at=%s\n", agg.ID, formatUTCTimestampPtr(agg.ProcessedAt))
	}
	return exitCode
}
