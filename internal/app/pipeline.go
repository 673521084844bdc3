package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/aggregator/internal/cli"
	"horse.fit/aggregator/internal/pipeline"
)

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	windowHours := fs.Int("window-hours", 0, "Trailing ingestion window in hours (0 uses DEDUP_WINDOW_HOURS)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *windowHours < 0 {
		fmt.Fprintln(os.Stderr, "--window-hours must be >= 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	window := deps.cfg.DedupWindow()
	if *windowHours > 0 {
		window = time.Duration(*windowHours) * time.Hour
	}

	result, err := newPipelineService(deps).RunDedup(ctx, pipeline.DedupOptions{Window: window})
	if err != nil {
		deps.logger.Error().Err(err).Str("run_id", result.RunID).Msg("dedup failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}

	printDedupResult(result, window)
	return 0
}

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	result, err := newPipelineService(deps).RunMerge(ctx)
	if err != nil {
		deps.logger.Error().Err(err).Str("run_id", result.RunID).Msg("merge failed")
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		return 1
	}

	printMergeResult(result)
	return 0
}

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Minute, "Command timeout")
	windowHours := fs.Int("window-hours", 0, "Trailing ingestion window in hours (0 uses DEDUP_WINDOW_HOURS)")
	skipMerge := fs.Bool("skip-merge", false, "Only run dedup")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *windowHours < 0 {
		fmt.Fprintln(os.Stderr, "--window-hours must be >= 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	window := deps.cfg.DedupWindow()
	if *windowHours > 0 {
		window = time.Duration(*windowHours) * time.Hour
	}

	svc := newPipelineService(deps)
	dedupResult, err := svc.RunDedup(ctx, pipeline.DedupOptions{Window: window})
	if err != nil {
		deps.logger.Error().Err(err).Str("run_id", dedupResult.RunID).Msg("process dedup stage failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}
	printDedupResult(dedupResult, window)

	if *skipMerge {
		return 0
	}

	mergeResult, err := svc.RunMerge(ctx)
	if err != nil {
		deps.logger.Error().Err(err).Str("run_id", mergeResult.RunID).Msg("process merge stage failed")
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		return 1
	}
	printMergeResult(mergeResult)
	return 0
}

func printDedupResult(result pipeline.DedupResult, window time.Duration) {
	fmt.Printf(
		"dedup run_id=%s window=%s working_set=%d created=%d duplicates=%d singletons=%d skipped=%d failures=%d\n",
		runIDOrNone(result.RunID),
		window,
		result.WorkingSet,
		result.Aggregations,
		result.Duplicates,
		result.Singletons,
		result.Skipped,
		result.Failures,
	)
}

func printMergeResult(result pipeline.MergeRunResult) {
	fmt.Printf(
		"merge run_id=%s aggregations=%d compared=%d merged=%d failures=%d\n",
		runIDOrNone(result.RunID),
		result.Aggregations,
		result.Compared,
		result.Merged,
		result.Failures,
	)
}

// Runs over an empty input are not recorded and carry no id.
func runIDOrNone(runID string) string {
	if runID == "" {
		return "none"
	}
	return runID
}
