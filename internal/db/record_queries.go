package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/globaltime"
)

const contentRecordColumns = `
	c.content_record_id,
	c.source_id,
	c.external_url,
	c.title,
	c.excerpt,
	c.full_content,
	c.language,
	c.status::text,
	c.duplicate_of_id,
	c.created_at,
	c.processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentRecord(row rowScanner) (content.Record, error) {
	var (
		record content.Record
		status string
	)
	if err := row.Scan(
		&record.ID,
		&record.SourceID,
		&record.ExternalURL,
		&record.Title,
		&record.Excerpt,
		&record.FullContent,
		&record.Language,
		&status,
		&record.DuplicateOfID,
		&record.CreatedAt,
		&record.ProcessedAt,
	); err != nil {
		return content.Record{}, err
	}
	record.Status = content.RecordStatus(status)
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

// InsertContentRecord stores a record handed over by ingestion. Re-delivery of
// the same (source_id, external_url) pair returns the stored row with
// inserted=false.
func (p *Pool) InsertContentRecord(ctx context.Context, in content.NewRecord) (content.Record, bool, error) {
	sourceID := strings.TrimSpace(in.SourceID)
	if sourceID == "" {
		return content.Record{}, false, fmt.Errorf("source_id is required")
	}
	createdAt := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		createdAt = globaltime.UTC()
	}

	const insertQ = `
WITH inserted AS (
	INSERT INTO dedup.content_records (
		source_id,
		external_url,
		title,
		excerpt,
		full_content,
		language,
		status,
		created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, 'unprocessed', $7)
	ON CONFLICT (source_id, external_url) DO NOTHING
	RETURNING *
)
SELECT` + contentRecordColumns + `
FROM inserted c
`

	record, err := scanContentRecord(p.QueryRow(
		ctx,
		insertQ,
		sourceID,
		strings.TrimSpace(in.ExternalURL),
		in.Title,
		in.Excerpt,
		in.FullContent,
		in.Language,
		createdAt,
	))
	if err == nil {
		return record, true, nil
	}
	if !IsNoRows(err) {
		return content.Record{}, false, fmt.Errorf("insert content record: %w", err)
	}

	const existingQ = `
SELECT` + contentRecordColumns + `
FROM dedup.content_records c
WHERE c.source_id = $1
  AND c.external_url = $2
`
	record, err = scanContentRecord(p.QueryRow(ctx, existingQ, sourceID, strings.TrimSpace(in.ExternalURL)))
	if err != nil {
		return content.Record{}, false, fmt.Errorf("load existing content record: %w", err)
	}
	return record, false, nil
}

// LoadWorkingSet returns unprocessed records created at or after since that
// no aggregation references, oldest first.
func (p *Pool) LoadWorkingSet(ctx context.Context, since time.Time) ([]content.Record, error) {
	const q = `
SELECT` + contentRecordColumns + `
FROM dedup.content_records c
WHERE c.status = 'unprocessed'
  AND c.created_at >= $1
  AND NOT EXISTS (
	SELECT 1
	FROM dedup.aggregation_records ar
	WHERE ar.content_record_id = c.content_record_id
  )
ORDER BY c.created_at ASC, c.content_record_id ASC
`

	rows, err := p.Query(ctx, q, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query working set: %w", err)
	}
	defer rows.Close()

	records := make([]content.Record, 0, 256)
	for rows.Next() {
		record, err := scanContentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan working set row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate working set rows: %w", err)
	}
	return records, nil
}

func (p *Pool) listRecordsByIDs(ctx context.Context, ids []int64) ([]content.Record, error) {
	if len(ids) == 0 {
		return []content.Record{}, nil
	}

	const q = `
SELECT` + contentRecordColumns + `
FROM dedup.content_records c
WHERE c.content_record_id = ANY($1::bigint[])
ORDER BY c.created_at ASC, c.content_record_id ASC
`

	rows, err := p.Query(ctx, q, int64ArrayLiteral(ids))
	if err != nil {
		return nil, fmt.Errorf("query records by id: %w", err)
	}
	defer rows.Close()

	records := make([]content.Record, 0, len(ids))
	for rows.Next() {
		record, err := scanContentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}

// listUnlistedDuplicates returns duplicates of primaryID that are not in
// memberIDs. These are the overflow candidates of a capped aggregation.
func (p *Pool) listUnlistedDuplicates(ctx context.Context, primaryID int64, memberIDs []int64) ([]content.Record, error) {
	const q = `
SELECT` + contentRecordColumns + `
FROM dedup.content_records c
WHERE c.duplicate_of_id = $1
  AND c.status = 'duplicate'
  AND NOT (c.content_record_id = ANY($2::bigint[]))
ORDER BY c.created_at ASC, c.content_record_id ASC
`

	rows, err := p.Query(ctx, q, primaryID, int64ArrayLiteral(memberIDs))
	if err != nil {
		return nil, fmt.Errorf("query unlisted duplicates: %w", err)
	}
	defer rows.Close()

	records := make([]content.Record, 0)
	for rows.Next() {
		record, err := scanContentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan duplicate row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate rows: %w", err)
	}
	return records, nil
}
