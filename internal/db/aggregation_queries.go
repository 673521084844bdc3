package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/pipeline"
)

// Aggregation list filters.
const (
	AggregationStatusAll       = "all"
	AggregationStatusPending   = "pending"
	AggregationStatusProcessed = "processed"
)

type AggregationFilter struct {
	Status string
	Limit  int
}

// AggregationDetail is an aggregation with its member records. Overflow
// holds duplicates of the primary that are not listed as members.
type AggregationDetail struct {
	Aggregation content.Aggregation `json:"aggregation"`
	Records     []content.Record    `json:"records"`
	Overflow    []content.Record    `json:"overflow"`
}

const aggregationColumns = `
	a.aggregation_id,
	a.topic,
	a.description,
	a.primary_record_id,
	a.primary_source_id,
	a.confidence_score,
	a.created_at,
	a.updated_at,
	a.processed_at`

func scanAggregation(row rowScanner) (content.Aggregation, error) {
	var agg content.Aggregation
	if err := row.Scan(
		&agg.ID,
		&agg.Topic,
		&agg.Description,
		&agg.PrimaryRecordID,
		&agg.PrimarySourceID,
		&agg.ConfidenceScore,
		&agg.CreatedAt,
		&agg.UpdatedAt,
		&agg.ProcessedAt,
	); err != nil {
		return content.Aggregation{}, err
	}
	return agg, nil
}

// CommitAggregation writes an aggregation, flags its duplicates and marks the
// primary in one transaction. Any record that is no longer unprocessed aborts
// the whole write.
func (p *Pool) CommitAggregation(ctx context.Context, draft pipeline.AggregationDraft) (content.Aggregation, error) {
	agg := draft.Aggregation
	processedAt := draft.ProcessedAt.UTC()

	err := p.inTx(ctx, "aggregation", func(tx Tx) error {
		const insertQ = `
INSERT INTO dedup.aggregations (
	topic,
	description,
	primary_record_id,
	primary_source_id,
	confidence_score,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING aggregation_id, created_at, updated_at
`
		if err := tx.QueryRow(
			ctx,
			insertQ,
			agg.Topic,
			agg.Description,
			agg.PrimaryRecordID,
			agg.PrimarySourceID,
			agg.ConfidenceScore,
			processedAt,
		).Scan(&agg.ID, &agg.CreatedAt, &agg.UpdatedAt); err != nil {
			return fmt.Errorf("insert aggregation: %w", err)
		}

		if err := insertMembersTx(ctx, tx, agg.ID, agg.ContentRecordIDs, processedAt); err != nil {
			return err
		}
		if err := insertSourcesTx(ctx, tx, agg.ID, agg.SourceIDs); err != nil {
			return err
		}

		const duplicateQ = `
UPDATE dedup.content_records
SET status = 'duplicate',
	duplicate_of_id = $1,
	processed_at = $2
WHERE content_record_id = $3
  AND status = 'unprocessed'
`
		for _, id := range draft.DuplicateIDs {
			tag, err := tx.Exec(ctx, duplicateQ, agg.PrimaryRecordID, processedAt, id)
			if err != nil {
				return fmt.Errorf("mark record %d duplicate: %w", id, err)
			}
			if tag.RowsAffected() != 1 {
				return fmt.Errorf("record %d: %w", id, ErrStaleRecord)
			}
		}

		const primaryQ = `
UPDATE dedup.content_records
SET status = 'primary',
	processed_at = $1
WHERE content_record_id = $2
  AND status = 'unprocessed'
`
		tag, err := tx.Exec(ctx, primaryQ, processedAt, agg.PrimaryRecordID)
		if err != nil {
			return fmt.Errorf("mark record %d primary: %w", agg.PrimaryRecordID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("record %d: %w", agg.PrimaryRecordID, ErrStaleRecord)
		}
		return nil
	})
	if err != nil {
		return content.Aggregation{}, err
	}
	return agg, nil
}

// ListAggregations returns every aggregation with its sets, oldest id first.
func (p *Pool) ListAggregations(ctx context.Context) ([]content.Aggregation, error) {
	return p.QueryAggregations(ctx, AggregationFilter{Status: AggregationStatusAll})
}

// QueryAggregations lists aggregations by consumption status. A zero limit
// means no limit.
func (p *Pool) QueryAggregations(ctx context.Context, filter AggregationFilter) ([]content.Aggregation, error) {
	status := strings.ToLower(strings.TrimSpace(filter.Status))
	if status == "" {
		status = AggregationStatusAll
	}
	switch status {
	case AggregationStatusAll, AggregationStatusPending, AggregationStatusProcessed:
	default:
		return nil, fmt.Errorf("unsupported aggregation status %q", filter.Status)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("limit must be >= 0")
	}

	const q = `
SELECT` + aggregationColumns + `
FROM dedup.aggregations a
WHERE $1 = 'all'
   OR ($1 = 'pending' AND a.processed_at IS NULL)
   OR ($1 = 'processed' AND a.processed_at IS NOT NULL)
ORDER BY a.aggregation_id ASC
LIMIT NULLIF($2, 0)
`

	rows, err := p.Query(ctx, q, status, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("query aggregations: %w", err)
	}
	defer rows.Close()

	aggregations := make([]content.Aggregation, 0, 64)
	for rows.Next() {
		agg, err := scanAggregation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregation row: %w", err)
		}
		aggregations = append(aggregations, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregation rows: %w", err)
	}

	if err := p.attachSets(ctx, aggregations); err != nil {
		return nil, err
	}
	return aggregations, nil
}

// GetAggregationDetail loads one aggregation and its member records.
func (p *Pool) GetAggregationDetail(ctx context.Context, aggregationID int64) (*AggregationDetail, error) {
	agg, err := p.getAggregation(ctx, aggregationID)
	if err != nil {
		return nil, err
	}

	records, err := p.listRecordsByIDs(ctx, agg.ContentRecordIDs)
	if err != nil {
		return nil, err
	}
	overflow, err := p.listUnlistedDuplicates(ctx, agg.PrimaryRecordID, agg.ContentRecordIDs)
	if err != nil {
		return nil, err
	}
	return &AggregationDetail{Aggregation: agg, Records: records, Overflow: overflow}, nil
}

// MarkAggregationProcessed records that the generation step consumed an
// aggregation. An already consumed aggregation keeps its first timestamp.
func (p *Pool) MarkAggregationProcessed(ctx context.Context, aggregationID int64, at time.Time) (content.Aggregation, error) {
	const q = `
UPDATE dedup.aggregations
SET processed_at = COALESCE(processed_at, $2),
	updated_at = $2
WHERE aggregation_id = $1
`
	tag, err := p.Exec(ctx, q, aggregationID, at.UTC())
	if err != nil {
		return content.Aggregation{}, fmt.Errorf("mark aggregation processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return content.Aggregation{}, ErrAggregationNotFound
	}
	return p.getAggregation(ctx, aggregationID)
}

// MergeAggregations folds plan.Absorbed into plan.Survivor in one transaction.
// Members of the absorbed aggregation are re-pointed at the survivor's
// primary and the absorbed aggregation is deleted.
func (p *Pool) MergeAggregations(ctx context.Context, plan pipeline.MergePlan) error {
	survivor := plan.Survivor
	absorbed := plan.Absorbed
	mergedAt := plan.MergedAt.UTC()
	if survivor.ID == absorbed.ID {
		return fmt.Errorf("cannot merge aggregation %d into itself", survivor.ID)
	}

	return p.inTx(ctx, "merge", func(tx Tx) error {
		const survivorQ = `
UPDATE dedup.aggregations
SET confidence_score = $2,
	processed_at = $3,
	updated_at = $4
WHERE aggregation_id = $1
`
		tag, err := tx.Exec(ctx, survivorQ, survivor.ID, survivor.ConfidenceScore, survivor.ProcessedAt, mergedAt)
		if err != nil {
			return fmt.Errorf("update surviving aggregation: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("surviving aggregation %d: %w", survivor.ID, ErrAggregationNotFound)
		}

		const moveMembersQ = `
INSERT INTO dedup.aggregation_records (aggregation_id, content_record_id, added_at)
SELECT $1, ar.content_record_id, $3
FROM dedup.aggregation_records ar
WHERE ar.aggregation_id = $2
ON CONFLICT (aggregation_id, content_record_id) DO NOTHING
`
		if _, err := tx.Exec(ctx, moveMembersQ, survivor.ID, absorbed.ID, mergedAt); err != nil {
			return fmt.Errorf("move aggregation members: %w", err)
		}

		const moveSourcesQ = `
INSERT INTO dedup.aggregation_sources (aggregation_id, source_id)
SELECT $1, s.source_id
FROM dedup.aggregation_sources s
WHERE s.aggregation_id = $2
ON CONFLICT (aggregation_id, source_id) DO NOTHING
`
		if _, err := tx.Exec(ctx, moveSourcesQ, survivor.ID, absorbed.ID); err != nil {
			return fmt.Errorf("move aggregation sources: %w", err)
		}

		const repointQ = `
UPDATE dedup.content_records
SET duplicate_of_id = $1
WHERE duplicate_of_id = $2
`
		if _, err := tx.Exec(ctx, repointQ, survivor.PrimaryRecordID, absorbed.PrimaryRecordID); err != nil {
			return fmt.Errorf("re-point absorbed duplicates: %w", err)
		}

		const demoteQ = `
UPDATE dedup.content_records
SET status = 'duplicate',
	duplicate_of_id = $1
WHERE content_record_id = $2
  AND content_record_id <> $1
`
		if _, err := tx.Exec(ctx, demoteQ, survivor.PrimaryRecordID, absorbed.PrimaryRecordID); err != nil {
			return fmt.Errorf("demote absorbed primary: %w", err)
		}

		const deleteQ = `
DELETE FROM dedup.aggregations
WHERE aggregation_id = $1
`
		tag, err = tx.Exec(ctx, deleteQ, absorbed.ID)
		if err != nil {
			return fmt.Errorf("delete absorbed aggregation: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("absorbed aggregation %d: %w", absorbed.ID, ErrAggregationNotFound)
		}
		return nil
	})
}

func (p *Pool) getAggregation(ctx context.Context, aggregationID int64) (content.Aggregation, error) {
	const q = `
SELECT` + aggregationColumns + `
FROM dedup.aggregations a
WHERE a.aggregation_id = $1
`
	agg, err := scanAggregation(p.QueryRow(ctx, q, aggregationID))
	if err != nil {
		if IsNoRows(err) {
			return content.Aggregation{}, ErrAggregationNotFound
		}
		return content.Aggregation{}, fmt.Errorf("query aggregation: %w", err)
	}

	aggregations := []content.Aggregation{agg}
	if err := p.attachSets(ctx, aggregations); err != nil {
		return content.Aggregation{}, err
	}
	return aggregations[0], nil
}

// attachSets fills member and source sets for the given aggregations.
func (p *Pool) attachSets(ctx context.Context, aggregations []content.Aggregation) error {
	if len(aggregations) == 0 {
		return nil
	}

	index := make(map[int64]int, len(aggregations))
	ids := make([]int64, 0, len(aggregations))
	for i := range aggregations {
		index[aggregations[i].ID] = i
		ids = append(ids, aggregations[i].ID)
		aggregations[i].ContentRecordIDs = []int64{}
		aggregations[i].SourceIDs = []string{}
	}
	idArray := int64ArrayLiteral(ids)

	const membersQ = `
SELECT ar.aggregation_id, ar.content_record_id
FROM dedup.aggregation_records ar
WHERE ar.aggregation_id = ANY($1::bigint[])
ORDER BY ar.aggregation_id ASC, ar.content_record_id ASC
`
	rows, err := p.Query(ctx, membersQ, idArray)
	if err != nil {
		return fmt.Errorf("query aggregation members: %w", err)
	}
	for rows.Next() {
		var aggregationID, recordID int64
		if err := rows.Scan(&aggregationID, &recordID); err != nil {
			rows.Close()
			return fmt.Errorf("scan aggregation member: %w", err)
		}
		if i, ok := index[aggregationID]; ok {
			aggregations[i].ContentRecordIDs = append(aggregations[i].ContentRecordIDs, recordID)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate aggregation members: %w", err)
	}
	rows.Close()

	const sourcesQ = `
SELECT s.aggregation_id, s.source_id
FROM dedup.aggregation_sources s
WHERE s.aggregation_id = ANY($1::bigint[])
ORDER BY s.aggregation_id ASC, s.source_id ASC
`
	rows, err = p.Query(ctx, sourcesQ, idArray)
	if err != nil {
		return fmt.Errorf("query aggregation sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			aggregationID int64
			sourceID      string
		)
		if err := rows.Scan(&aggregationID, &sourceID); err != nil {
			return fmt.Errorf("scan aggregation source: %w", err)
		}
		if i, ok := index[aggregationID]; ok {
			aggregations[i].SourceIDs = append(aggregations[i].SourceIDs, sourceID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate aggregation sources: %w", err)
	}
	return nil
}

func insertMembersTx(ctx context.Context, tx Tx, aggregationID int64, recordIDs []int64, addedAt time.Time) error {
	const q = `
INSERT INTO dedup.aggregation_records (aggregation_id, content_record_id, added_at)
VALUES ($1, $2, $3)
ON CONFLICT (aggregation_id, content_record_id) DO NOTHING
`
	for _, id := range content.RecordIDSet(recordIDs) {
		if _, err := tx.Exec(ctx, q, aggregationID, id, addedAt); err != nil {
			return fmt.Errorf("insert aggregation member %d: %w", id, err)
		}
	}
	return nil
}

func insertSourcesTx(ctx context.Context, tx Tx, aggregationID int64, sourceIDs []string) error {
	const q = `
INSERT INTO dedup.aggregation_sources (aggregation_id, source_id)
VALUES ($1, $2)
ON CONFLICT (aggregation_id, source_id) DO NOTHING
`
	for _, id := range content.SourceSet(sourceIDs) {
		if _, err := tx.Exec(ctx, q, aggregationID, id); err != nil {
			return fmt.Errorf("insert aggregation source %q: %w", id, err)
		}
	}
	return nil
}

// int64ArrayLiteral formats ids as a postgres array literal for ::bigint[] casts.
func int64ArrayLiteral(ids []int64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('}')
	return b.String()
}
