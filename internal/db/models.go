package db

import "time"

// ContentRecord maps dedup.content_records.
type ContentRecord struct {
	ContentRecordID int64      `gorm:"column:content_record_id;primaryKey;autoIncrement"`
	SourceID        string     `gorm:"column:source_id;type:text;not null;uniqueIndex:content_records_source_url_key,priority:1"`
	ExternalURL     string     `gorm:"column:external_url;type:text;not null;default:'';uniqueIndex:content_records_source_url_key,priority:2"`
	Title           string     `gorm:"column:title;type:text;not null"`
	Excerpt         string     `gorm:"column:excerpt;type:text;not null;default:''"`
	FullContent     string     `gorm:"column:full_content;type:text;not null;default:''"`
	Language        string     `gorm:"column:language;type:text;not null;default:''"`
	Status          string     `gorm:"column:status;type:dedup.record_status;not null;default:unprocessed"`
	DuplicateOfID   *int64     `gorm:"column:duplicate_of_id;type:bigint"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	ProcessedAt     *time.Time `gorm:"column:processed_at;type:timestamptz"`
	IngestedAt      time.Time  `gorm:"column:ingested_at;type:timestamptz;not null;default:now()"`
}

func (ContentRecord) TableName() string { return "dedup.content_records" }

// Aggregation maps dedup.aggregations.
type Aggregation struct {
	AggregationID   int64      `gorm:"column:aggregation_id;primaryKey;autoIncrement"`
	AggregationUUID string     `gorm:"column:aggregation_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Topic           string     `gorm:"column:topic;type:text;not null"`
	Description     string     `gorm:"column:description;type:text;not null;default:''"`
	PrimaryRecordID int64      `gorm:"column:primary_record_id;type:bigint;not null"`
	PrimarySourceID string     `gorm:"column:primary_source_id;type:text;not null"`
	ConfidenceScore float64    `gorm:"column:confidence_score;type:double precision;not null;default:0"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
	ProcessedAt     *time.Time `gorm:"column:processed_at;type:timestamptz"`
}

func (Aggregation) TableName() string { return "dedup.aggregations" }

// AggregationRecord maps dedup.aggregation_records.
type AggregationRecord struct {
	AggregationID   int64     `gorm:"column:aggregation_id;primaryKey;type:bigint"`
	ContentRecordID int64     `gorm:"column:content_record_id;primaryKey;type:bigint"`
	AddedAt         time.Time `gorm:"column:added_at;type:timestamptz;not null;default:now()"`
}

func (AggregationRecord) TableName() string { return "dedup.aggregation_records" }

// AggregationSource maps dedup.aggregation_sources.
type AggregationSource struct {
	AggregationID int64  `gorm:"column:aggregation_id;primaryKey;type:bigint"`
	SourceID      string `gorm:"column:source_id;primaryKey;type:text"`
}

func (AggregationSource) TableName() string { return "dedup.aggregation_sources" }

// DedupRun maps dedup.dedup_runs.
type DedupRun struct {
	RunID        int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID      string     `gorm:"column:run_uuid;type:uuid;not null;unique"`
	Kind         string     `gorm:"column:kind;type:text;not null"`
	WindowStart  *time.Time `gorm:"column:window_start;type:timestamptz"`
	StartedAt    time.Time  `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt   time.Time  `gorm:"column:finished_at;type:timestamptz;not null"`
	Status       string     `gorm:"column:status;type:dedup.run_status;not null"`
	Considered   int        `gorm:"column:considered;type:integer;not null;default:0"`
	Created      int        `gorm:"column:created;type:integer;not null;default:0"`
	Duplicates   int        `gorm:"column:duplicates;type:integer;not null;default:0"`
	Merged       int        `gorm:"column:merged;type:integer;not null;default:0"`
	Failures     int        `gorm:"column:failures;type:integer;not null;default:0"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
}

func (DedupRun) TableName() string { return "dedup.dedup_runs" }

func autoMigrateModels() []any {
	return []any{
		&ContentRecord{},
		&Aggregation{},
		&AggregationRecord{},
		&AggregationSource{},
		&DedupRun{},
	}
}
