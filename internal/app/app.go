package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "dedup":
		return runDedup(args[1:])
	case "merge":
		return runMerge(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "schedule":
		return runSchedule(args[1:])
	case "aggregations":
		return runAggregations(args[1:])
	case "aggregation", "show":
		return runAggregationDetail(args[1:])
	case "mark-processed":
		return runMarkProcessed(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "aggregator CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  aggregator <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health          Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate        Validate content record JSON files against the v1 schema")
	fmt.Fprintln(os.Stderr, "  ingest          Insert content records from a file or stdin")
	fmt.Fprintln(os.Stderr, "  dedup           Group recent unprocessed records into aggregations")
	fmt.Fprintln(os.Stderr, "  merge           Fold overlapping aggregations together")
	fmt.Fprintln(os.Stderr, "  process         Run dedup then merge")
	fmt.Fprintln(os.Stderr, "  run-once        Alias for process")
	fmt.Fprintln(os.Stderr, "  schedule        Run process on a fixed interval until interrupted")
	fmt.Fprintln(os.Stderr, "  aggregations    List aggregations")
	fmt.Fprintln(os.Stderr, "  show            Show one aggregation with its records")
	fmt.Fprintln(os.Stderr, "  mark-processed  Acknowledge an aggregation as consumed")
	fmt.Fprintln(os.Stderr, "  stats           Show record, aggregation and run counts")
	fmt.Fprintln(os.Stderr, "  serve           Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"aggregator <command> -h\" for command-specific flags.")
}
