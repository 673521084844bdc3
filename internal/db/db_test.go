package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm/logger"
)

func TestInt64ArrayLiteral(t *testing.T) {
	t.Parallel()

	cases := map[string][]int64{
		"{}":        nil,
		"{7}":       {7},
		"{1,22,-3}": {1, 22, -3},
	}
	for want, ids := range cases {
		if got := int64ArrayLiteral(ids); got != want {
			t.Fatalf("int64ArrayLiteral(%v) = %q, want %q", ids, got, want)
		}
	}
}

func TestAutoMigrateModelsLiveInDedupSchema(t *testing.T) {
	t.Parallel()

	type tabler interface{ TableName() string }
	for _, model := range autoMigrateModels() {
		named, ok := model.(tabler)
		if !ok {
			t.Fatalf("model %T has no TableName", model)
		}
		if !strings.HasPrefix(named.TableName(), "dedup.") {
			t.Fatalf("model %T table %q is outside the dedup schema", model, named.TableName())
		}
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level string
		env   string
		want  logger.LogLevel
	}{
		{level: "debug", want: logger.Info},
		{level: "info", want: logger.Warn},
		{level: "error", want: logger.Error},
		{level: "silent", want: logger.Silent},
		{level: "bogus", env: "local", want: logger.Warn},
		{level: "bogus", env: "production", want: logger.Error},
	}
	for _, tc := range cases {
		if got := resolveGormLogLevel(tc.level, tc.env); got != tc.want {
			t.Fatalf("resolveGormLogLevel(%q, %q) = %v, want %v", tc.level, tc.env, got, tc.want)
		}
	}
}

func TestIsNoRowsAndNotFound(t *testing.T) {
	t.Parallel()

	if !IsNoRows(fmt.Errorf("wrapped: %w", ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if !IsNoRows(sql.ErrNoRows) {
		t.Fatalf("expected database/sql ErrNoRows to match")
	}
	if IsNoRows(errPoolClosed) || IsNoRows(nil) {
		t.Fatalf("expected only missing rows to match")
	}
	if !errors.Is(fmt.Errorf("merge: %w", ErrAggregationNotFound), ErrAggregationNotFound) {
		t.Fatalf("expected wrapped ErrAggregationNotFound to match")
	}
}

func TestNilPoolGuards(t *testing.T) {
	t.Parallel()

	var pool *Pool
	if _, err := pool.BeginTx(t.Context()); !errors.Is(err, errPoolClosed) {
		t.Fatalf("expected errPoolClosed from nil pool, got %v", err)
	}
	if _, err := pool.Exec(t.Context(), "SELECT 1"); !errors.Is(err, errPoolClosed) {
		t.Fatalf("expected errPoolClosed from nil pool exec, got %v", err)
	}
	var n int
	if err := pool.QueryRow(t.Context(), "SELECT 1").Scan(&n); !errors.Is(err, errPoolClosed) {
		t.Fatalf("expected errPoolClosed from nil pool scan, got %v", err)
	}
	if err := pool.Ping(t.Context()); err == nil {
		t.Fatalf("expected ping error from nil pool")
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("expected nil pool close to succeed, got %v", err)
	}
}

func TestMigrationStepsOrder(t *testing.T) {
	t.Parallel()

	steps := migrationSteps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 migration steps, got %d", len(steps))
	}
	if steps[0].name != "pre-auto-migrate" || !strings.Contains(steps[0].sql, "CREATE SCHEMA IF NOT EXISTS dedup") {
		t.Fatalf("expected schema creation first, got %q", steps[0].name)
	}
	if len(steps[1].models) == 0 || steps[1].sql != "" {
		t.Fatalf("expected gorm models in the middle step")
	}
	if steps[2].name != "post-auto-migrate" || strings.TrimSpace(steps[2].sql) == "" {
		t.Fatalf("expected post-auto-migrate SQL last")
	}
}

func TestInTxReportsBeginFailure(t *testing.T) {
	t.Parallel()

	var pool *Pool
	called := false
	err := pool.inTx(t.Context(), "test", func(Tx) error {
		called = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "begin test tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run without a transaction")
	}
	if errors.Is(fmt.Errorf("record 3: %w", ErrStaleRecord), ErrAggregationNotFound) {
		t.Fatalf("stale record must not match not-found")
	}
}
