package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/aggregator/internal/cli"
	"horse.fit/aggregator/internal/ingest"
)

type ingestSummary struct {
	Inserted int
	Existing int
	Invalid  int
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	payload := fs.String("payload", "", "Content record payload JSON (object or array)")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file, or - for stdin (overrides --payload)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	raw, err := loadJSONInput(*payload, *payloadFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}
	payloads, err := splitPayloads(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := connectRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer deps.Close()

	svc, err := newIngestService(deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest setup failed: %v\n", err)
		return 1
	}

	summary := ingestSummary{}
	for i, item := range payloads {
		result, err := svc.IngestPayload(ctx, item)
		if err != nil {
			if errors.Is(err, ingest.ErrInvalidPayload) {
				summary.Invalid++
				fmt.Fprintf(os.Stderr, "INVALID #%d: %v\n", i, err)
				continue
			}
			deps.logger.Error().Err(err).Int("index", i).Msg("ingest failed")
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			return 1
		}
		if result.Inserted {
			summary.Inserted++
		} else {
			summary.Existing++
		}
		fmt.Printf("record_id=%d status=%s source_id=%s language=%s\n",
			result.Record.ID,
			result.Status,
			result.Record.SourceID,
			result.Record.Language,
		)
	}

	fmt.Printf("ingest inserted=%d existing=%d invalid=%d\n", summary.Inserted, summary.Existing, summary.Invalid)
	if summary.Invalid > 0 {
		return 1
	}
	return 0
}

func loadJSONInput(inlineValue, filePath string, stdin io.Reader) (json.RawMessage, error) {
	if path := strings.TrimSpace(filePath); path != "" {
		var (
			payload []byte
			err     error
		)
		if path == "-" {
			payload, err = io.ReadAll(stdin)
		} else {
			payload, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read payload file %q: %w", path, err)
		}
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 {
			return nil, fmt.Errorf("payload file %q is empty", path)
		}
		return json.RawMessage(trimmed), nil
	}

	trimmed := strings.TrimSpace(inlineValue)
	if trimmed == "" {
		return nil, fmt.Errorf("payload JSON is empty; use --payload or --payload-file")
	}
	return json.RawMessage(trimmed), nil
}

// splitPayloads accepts one record object or an array of them.
func splitPayloads(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode payload array: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("payload array is empty")
	}
	return items, nil
}
