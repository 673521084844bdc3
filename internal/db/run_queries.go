package db

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/aggregator/internal/pipeline"
)

// RecordRun appends one dedup or merge run to the run log.
func (p *Pool) RecordRun(ctx context.Context, run pipeline.RunRecord) error {
	const q = `
INSERT INTO dedup.dedup_runs (
	run_uuid,
	kind,
	window_start,
	started_at,
	finished_at,
	status,
	considered,
	created,
	duplicates,
	merged,
	failures,
	error_message
)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (run_uuid) DO NOTHING
`

	var errorMessage *string
	if trimmed := strings.TrimSpace(run.ErrorMessage); trimmed != "" {
		errorMessage = &trimmed
	}

	if _, err := p.Exec(
		ctx,
		q,
		run.RunID,
		run.Kind,
		run.WindowStart,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Status,
		run.Considered,
		run.Created,
		run.Duplicates,
		run.Merged,
		run.Failures,
		errorMessage,
	); err != nil {
		return fmt.Errorf("insert dedup run: %w", err)
	}
	return nil
}
