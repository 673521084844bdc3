package db

import (
	"context"
	"fmt"
	"time"
)

// RecordCounts stores content record counts by status.
type RecordCounts struct {
	Total       int64 `json:"total"`
	Unprocessed int64 `json:"unprocessed"`
	Duplicate   int64 `json:"duplicate"`
	Primary     int64 `json:"primary"`
}

// AggregationCounts stores aggregation counts by consumption state.
type AggregationCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
}

// RunSummary is the latest run of one kind.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Considered int       `json:"considered"`
	Created    int       `json:"created"`
	Duplicates int       `json:"duplicates"`
	Merged     int       `json:"merged"`
	Failures   int       `json:"failures"`
}

// Stats is the read model returned by the stats command and endpoint.
type Stats struct {
	Records      RecordCounts      `json:"records"`
	Aggregations AggregationCounts `json:"aggregations"`
	LastRuns     []RunSummary      `json:"last_runs"`
}

// QueryStats returns record and aggregation counts plus the latest run per kind.
func (p *Pool) QueryStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{LastRuns: make([]RunSummary, 0, 2)}

	const recordsQ = `
SELECT
	COUNT(*)::BIGINT,
	COUNT(*) FILTER (WHERE status = 'unprocessed')::BIGINT,
	COUNT(*) FILTER (WHERE status = 'duplicate')::BIGINT,
	COUNT(*) FILTER (WHERE status = 'primary')::BIGINT
FROM dedup.content_records
`
	if err := p.QueryRow(ctx, recordsQ).Scan(
		&stats.Records.Total,
		&stats.Records.Unprocessed,
		&stats.Records.Duplicate,
		&stats.Records.Primary,
	); err != nil {
		return nil, fmt.Errorf("query record counts: %w", err)
	}

	const aggregationsQ = `
SELECT
	COUNT(*)::BIGINT,
	COUNT(*) FILTER (WHERE processed_at IS NULL)::BIGINT,
	COUNT(*) FILTER (WHERE processed_at IS NOT NULL)::BIGINT
FROM dedup.aggregations
`
	if err := p.QueryRow(ctx, aggregationsQ).Scan(
		&stats.Aggregations.Total,
		&stats.Aggregations.Pending,
		&stats.Aggregations.Processed,
	); err != nil {
		return nil, fmt.Errorf("query aggregation counts: %w", err)
	}

	const runsQ = `
SELECT DISTINCT ON (r.kind)
	r.run_uuid::text,
	r.kind,
	r.status::text,
	r.started_at,
	r.finished_at,
	r.considered,
	r.created,
	r.duplicates,
	r.merged,
	r.failures
FROM dedup.dedup_runs r
ORDER BY r.kind ASC, r.started_at DESC
`
	rows, err := p.Query(ctx, runsQ)
	if err != nil {
		if IsNoRows(err) {
			return stats, nil
		}
		return nil, fmt.Errorf("query last runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(
			&run.RunID,
			&run.Kind,
			&run.Status,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Considered,
			&run.Created,
			&run.Duplicates,
			&run.Merged,
			&run.Failures,
		); err != nil {
			return nil, fmt.Errorf("scan last run: %w", err)
		}
		stats.LastRuns = append(stats.LastRuns, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate last runs: %w", err)
	}
	return stats, nil
}
