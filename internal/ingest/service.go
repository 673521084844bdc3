package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/content"
	"horse.fit/aggregator/internal/globaltime"
	"horse.fit/aggregator/internal/language"
	"horse.fit/aggregator/internal/metrics"
	"horse.fit/aggregator/internal/reader"
	payloadschema "horse.fit/aggregator/schema"
)

// ErrInvalidPayload marks payloads rejected before reaching the store.
var ErrInvalidPayload = errors.New("invalid content record payload")

// Ingest outcomes.
const (
	StatusInserted = "inserted"
	StatusExisting = "existing"
)

// Store persists content records handed over by ingestion.
type Store interface {
	InsertContentRecord(ctx context.Context, in content.NewRecord) (content.Record, bool, error)
}

// LanguageDetector returns an ISO 639-1 code or "".
type LanguageDetector interface {
	DetectISO6391(text string) string
}

type Service struct {
	store    Store
	detector LanguageDetector
	logger   zerolog.Logger
}

type Request struct {
	SourceID    string
	ExternalURL string
	Title       string
	Excerpt     string
	FullContent string
	Language    string
	CreatedAt   time.Time
}

type Result struct {
	Record   content.Record `json:"record"`
	Inserted bool           `json:"inserted"`
	Status   string         `json:"status"`
}

func NewService(store Store, detector LanguageDetector, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		detector: detector,
		logger:   logger,
	}
}

// IngestPayload validates a JSON intake payload and stores it.
func (s *Service) IngestPayload(ctx context.Context, payload json.RawMessage) (Result, error) {
	record, err := payloadschema.ValidateContentRecordPayload(payload)
	if err != nil {
		metrics.RecordIngest("rejected")
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	req := Request{
		SourceID:    record.SourceID,
		ExternalURL: record.ExternalURL,
		Title:       record.Title,
		CreatedAt:   record.CreatedAtTime(),
	}
	if record.Excerpt != nil {
		req.Excerpt = *record.Excerpt
	}
	if record.FullContent != nil {
		req.FullContent = *record.FullContent
	}
	if record.Language != nil {
		req.Language = *record.Language
	}
	return s.IngestOne(ctx, req)
}

// IngestOne normalizes and stores one record. Re-delivery of a record from
// the same source and URL is reported with Status "existing".
func (s *Service) IngestOne(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return Result{}, fmt.Errorf("%w: source_id is required", ErrInvalidPayload)
	}
	title := strings.Join(strings.Fields(req.Title), " ")
	if title == "" {
		return Result{}, fmt.Errorf("%w: title is required", ErrInvalidPayload)
	}

	externalURL, _ := CanonicalURL(req.ExternalURL)
	if externalURL == "" {
		externalURL = strings.TrimSpace(req.ExternalURL)
	}

	excerpt := reader.CleanText(req.Excerpt)
	if excerpt == "" && strings.TrimSpace(req.FullContent) != "" {
		derived, err := reader.Excerpt(req.FullContent, externalURL, reader.DefaultExcerptChars)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("source_id", sourceID).
				Str("external_url", externalURL).
				Msg("could not derive excerpt from full content")
		}
		excerpt = derived
	}

	lang := language.NormalizeCode(req.Language)
	if lang == "" && s.detector != nil {
		lang = s.detector.DetectISO6391(title + "\n" + excerpt)
	}

	createdAt := req.CreatedAt.UTC()
	if req.CreatedAt.IsZero() {
		createdAt = globaltime.UTC()
	}

	record, inserted, err := s.store.InsertContentRecord(ctx, content.NewRecord{
		SourceID:    sourceID,
		ExternalURL: externalURL,
		Title:       title,
		Excerpt:     excerpt,
		FullContent: req.FullContent,
		Language:    lang,
		CreatedAt:   createdAt,
	})
	if err != nil {
		metrics.RecordIngest("failed")
		return Result{}, fmt.Errorf("insert content record: %w", err)
	}

	status := StatusExisting
	if inserted {
		status = StatusInserted
	}
	metrics.RecordIngest(status)

	s.logger.Info().
		Int64("record_id", record.ID).
		Str("source_id", record.SourceID).
		Str("language", record.Language).
		Str("status", status).
		Msg("content record ingested")

	return Result{
		Record:   record,
		Inserted: inserted,
		Status:   status,
	}, nil
}
