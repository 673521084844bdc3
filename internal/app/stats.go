package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/aggregator/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
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
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
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

	stats, err := deps.pool.QueryStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	countRows := [][]string{
		{"records_total", fmt.Sprintf("%d", stats.Records.Total)},
		{"records_unprocessed", fmt.Sprintf("%d", stats.Records.Unprocessed)},
		{"records_primary", fmt.Sprintf("%d", stats.Records.Primary)},
		{"records_duplicate", fmt.Sprintf("%d", stats.Records.Duplicate)},
		{"aggregations_total", fmt.Sprintf("%d", stats.Aggregations.Total)},
		{"aggregations_pending", fmt.Sprintf("%d", stats.Aggregations.Pending)},
		{"aggregations_processed", fmt.Sprintf("%d", stats.Aggregations.Processed)},
	}
	if err := writeTable([]string{"metric", "value"}, countRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render count table: %v\n", err)
		return 1
	}

	if len(stats.LastRuns) == 0 {
		return 0
	}

	fmt.Println()
	runRows := make([][]string, 0, len(stats.LastRuns))
	for _, run := range stats.LastRuns {
		runRows = append(runRows, []string{
			run.Kind,
			run.Status,
			run.RunID,
			formatUTCTimestamp(run.FinishedAt),
			fmt.Sprintf("%d", run.Considered),
			fmt.Sprintf("%d", run.Created),
			fmt.Sprintf("%d", run.Duplicates),
			fmt.Sprintf("%d", run.Merged),
			fmt.Sprintf("%d", run.Failures),
		})
	}
	if err := writeTable([]string{"kind", "status", "run_id", "finished_at", "considered", "created", "duplicates", "merged", "failures"}, runRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render run table: %v\n", err)
		return 1
	}
	return 0
}
