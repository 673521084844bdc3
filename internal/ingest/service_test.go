package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/aggregator/internal/content"
)

type fakeStore struct {
	records map[string]content.Record
	nextID  int64
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]content.Record)}
}

func (f *fakeStore) InsertContentRecord(_ context.Context, in content.NewRecord) (content.Record, bool, error) {
	if f.err != nil {
		return content.Record{}, false, f.err
	}
	key := in.SourceID + "|" + in.ExternalURL
	if existing, ok := f.records[key]; ok {
		return existing, false, nil
	}
	f.nextID++
	record := content.Record{
		ID:          f.nextID,
		SourceID:    in.SourceID,
		ExternalURL: in.ExternalURL,
		Title:       in.Title,
		Excerpt:     in.Excerpt,
		FullContent: in.FullContent,
		Language:    in.Language,
		Status:      content.StatusUnprocessed,
		CreatedAt:   in.CreatedAt,
	}
	f.records[key] = record
	return record, true, nil
}

type fixedDetector string

func (d fixedDetector) DetectISO6391(string) string { return string(d) }

func TestIngestPayloadInsertsAndDeduplicatesRedelivery(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := NewService(store, fixedDetector("en"), zerolog.Nop())
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source_id":"reuters",
		"external_url":"https://Example.com/fed/?utm_source=feed",
		"title":"  Fed raises   interest rates ",
		"excerpt":"The Federal Reserve raised interest rates.",
		"created_at":"2026-03-10T14:00:00Z"
	}`)

	first, err := service.IngestPayload(context.Background(), payload)
	if err != nil {
		t.Fatalf("IngestPayload returned error: %v", err)
	}
	if !first.Inserted || first.Status != StatusInserted {
		t.Fatalf("expected insert, got %+v", first)
	}
	if first.Record.ExternalURL != "https://example.com/fed" {
		t.Fatalf("expected canonical url, got %q", first.Record.ExternalURL)
	}
	if first.Record.Title != "Fed raises interest rates" {
		t.Fatalf("unexpected title: %q", first.Record.Title)
	}
	if first.Record.Language != "en" {
		t.Fatalf("expected detected language en, got %q", first.Record.Language)
	}
	if !first.Record.CreatedAt.Equal(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %s", first.Record.CreatedAt)
	}

	second, err := service.IngestPayload(context.Background(), payload)
	if err != nil {
		t.Fatalf("IngestPayload returned error on redelivery: %v", err)
	}
	if second.Inserted || second.Status != StatusExisting || second.Record.ID != first.Record.ID {
		t.Fatalf("expected existing record, got %+v", second)
	}
}

func TestIngestPayloadRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	service := NewService(newFakeStore(), nil, zerolog.Nop())
	_, err := service.IngestPayload(context.Background(), json.RawMessage(`{"payload_version":"v1"}`))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestIngestOneDerivesExcerptFromFullContent(t *testing.T) {
	t.Parallel()

	service := NewService(newFakeStore(), nil, zerolog.Nop())
	result, err := service.IngestOne(context.Background(), Request{
		SourceID:    "wire",
		ExternalURL: "https://example.com/a",
		Title:       "Storm hits coast",
		FullContent: "Storm surge flooded the harbour overnight.\n\nCrews worked until dawn.",
		Language:    "EN_gb",
	})
	if err != nil {
		t.Fatalf("IngestOne returned error: %v", err)
	}
	if result.Record.Excerpt != "Storm surge flooded the harbour overnight." {
		t.Fatalf("unexpected excerpt: %q", result.Record.Excerpt)
	}
	if result.Record.Language != "en" {
		t.Fatalf("expected normalized language en, got %q", result.Record.Language)
	}
	if result.Record.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to default to now")
	}
}

func TestIngestOnePropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.err = errors.New("database unavailable")
	service := NewService(store, nil, zerolog.Nop())

	_, err := service.IngestOne(context.Background(), Request{SourceID: "wire", ExternalURL: "https://example.com/a", Title: "Title"})
	if !errors.Is(err, store.err) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestIngestOneRequiresSourceAndTitle(t *testing.T) {
	t.Parallel()

	service := NewService(newFakeStore(), nil, zerolog.Nop())
	if _, err := service.IngestOne(context.Background(), Request{Title: "x"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected missing source error, got %v", err)
	}
	if _, err := service.IngestOne(context.Background(), Request{SourceID: "s", Title: "  "}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected missing title error, got %v", err)
	}
}

func TestNilServiceIsRejected(t *testing.T) {
	t.Parallel()

	var service *Service
	if _, err := service.IngestOne(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
