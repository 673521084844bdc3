package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/aggregator/internal/cli"
	"horse.fit/aggregator/internal/scheduler"
)

func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	interval := fs.Duration("interval", 0, "Time between runs (0 uses SCHEDULE_INTERVAL)")
	windowHours := fs.Int("window-hours", 0, "Trailing ingestion window in hours (0 uses DEDUP_WINDOW_HOURS)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *interval < 0 {
		fmt.Fprintln(os.Stderr, "--interval must be >= 0")
		return 2
	}
	if *windowHours < 0 {
		fmt.Fprintln(os.Stderr, "--window-hours must be >= 0")
		return 2
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	deps, err := connectRuntime(dbCtx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := newScheduler(deps, *interval, *windowHours)
	if err := sched.Run(ctx); err != nil {
		deps.logger.Error().Err(err).Msg("scheduler failed")
		fmt.Fprintf(os.Stderr, "Scheduler failed: %v\n", err)
		return 1
	}
	return 0
}

func newScheduler(deps *runtimeDeps, interval time.Duration, windowHours int) *scheduler.Scheduler {
	if interval <= 0 {
		interval = deps.cfg.ScheduleInterval
	}
	window := deps.cfg.DedupWindow()
	if windowHours > 0 {
		window = time.Duration(windowHours) * time.Hour
	}
	return scheduler.New(newPipelineService(deps), interval, window, deps.logger)
}
