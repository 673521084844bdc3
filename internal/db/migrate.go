package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

// migrationStep is one ordered stage of schema setup. Exactly one of sql or
// models is set.
type migrationStep struct {
	name   string
	sql    string
	models []any
}

// migrationSteps creates the dedup schema and enums, lets gorm shape the
// tables, then adds the indexes, checks and foreign keys gorm cannot express.
func migrationSteps() []migrationStep {
	return []migrationStep{
		{name: "pre-auto-migrate", sql: preAutoMigrateSQL},
		{name: "auto-migrate", models: autoMigrateModels()},
		{name: "post-auto-migrate", sql: postAutoMigrateSQL},
	}
}

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	for _, step := range migrationSteps() {
		if len(step.models) > 0 {
			if err := p.gdb.WithContext(ctx).AutoMigrate(step.models...); err != nil {
				return fmt.Errorf("%s models: %w", step.name, err)
			}
			continue
		}
		if err := executeMigrationSQL(ctx, p, step.name, step.sql); err != nil {
			return err
		}
	}
	return nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
