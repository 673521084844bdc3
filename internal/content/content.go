// Package content holds the records and aggregations shared by the
// similarity engine, the batch pipeline and the store.
package content

import (
	"sort"
	"strings"
	"time"
)

// RecordStatus is the classification state of a content record.
type RecordStatus string

const (
	StatusUnprocessed RecordStatus = "unprocessed"
	StatusDuplicate   RecordStatus = "duplicate"
	StatusPrimary     RecordStatus = "primary"
)

// Valid reports whether s is one of the known statuses.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusUnprocessed, StatusDuplicate, StatusPrimary:
		return true
	default:
		return false
	}
}

// Record is one ingested textual item.
type Record struct {
	ID            int64        `json:"id"`
	SourceID      string       `json:"source_id"`
	ExternalURL   string       `json:"external_url"`
	Title         string       `json:"title"`
	Excerpt       string       `json:"excerpt"`
	FullContent   string       `json:"full_content,omitempty"`
	Language      string       `json:"language,omitempty"`
	Status        RecordStatus `json:"status"`
	DuplicateOfID *int64       `json:"duplicate_of_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
}

func (r Record) IsDuplicate() bool {
	return r.Status == StatusDuplicate
}

// NewRecord is the intake shape handed over by the ingestion collaborator.
type NewRecord struct {
	SourceID    string
	ExternalURL string
	Title       string
	Excerpt     string
	FullContent string
	Language    string
	CreatedAt   time.Time
}

// Aggregation is a cluster of records believed to describe one topic.
type Aggregation struct {
	ID               int64      `json:"id"`
	Topic            string     `json:"topic"`
	Description      string     `json:"description"`
	SourceIDs        []string   `json:"source_ids"`
	ContentRecordIDs []int64    `json:"content_record_ids"`
	PrimaryRecordID  int64      `json:"primary_record_id"`
	PrimarySourceID  string     `json:"primary_source_id"`
	ConfidenceScore  float64    `json:"confidence_score"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// SourceSet returns sorted unique non-empty source ids.
func SourceSet(ids ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, group := range ids {
		for _, id := range group {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RecordIDSet returns sorted unique record ids.
func RecordIDSet(ids ...[]int64) []int64 {
	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for _, group := range ids {
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
