package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"horse.fit/aggregator/internal/ingest"
	payloadschema "horse.fit/aggregator/schema"
)

const (
	verdictValid       = "valid"
	verdictInvalid     = "invalid"
	verdictRedelivered = "redelivered"
)

type fileVerdict struct {
	Path    string `json:"path"`
	Verdict string `json:"verdict"`
	Detail  string `json:"detail,omitempty"`
}

type validateReport struct {
	Scanned     int           `json:"scanned"`
	Valid       int           `json:"valid"`
	Invalid     int           `json:"invalid"`
	Redelivered int           `json:"redelivered"`
	Files       []fileVerdict `json:"files"`
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "testdata/content_records", "Directory containing .json content record files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		return 2
	}

	root := strings.TrimSpace(*dir)
	files, err := collectJSONFiles(root, *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no .json files found under %s\n", root)
		return 1
	}

	report := validateFiles(files, os.ReadFile)

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
	} else {
		rows := make([][]string, 0, len(report.Files))
		for _, file := range report.Files {
			if file.Verdict == verdictValid {
				continue
			}
			rows = append(rows, []string{file.Verdict, file.Path, truncateForTable(file.Detail, 100)})
		}
		if len(rows) > 0 {
			if err := writeTable([]string{"VERDICT", "FILE", "DETAIL"}, rows); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write table: %v\n", err)
				return 1
			}
		}
		fmt.Printf(
			"validate scanned=%d valid=%d invalid=%d redelivered=%d dir=%s recursive=%t\n",
			report.Scanned, report.Valid, report.Invalid, report.Redelivered, root, *recursive,
		)
	}

	if report.Invalid > 0 {
		return 1
	}
	return 0
}

// validateFiles checks every payload against the content record schema.
// A valid payload that repeats an earlier file's source and canonical URL
// counts as valid and is also flagged as a redelivery.
func validateFiles(files []string, readFile func(string) ([]byte, error)) validateReport {
	report := validateReport{Files: make([]fileVerdict, 0, len(files))}
	firstSeen := make(map[string]string, len(files))

	for _, path := range files {
		report.Scanned++
		verdict := fileVerdict{Path: path, Verdict: verdictValid}

		record, err := decodeRecordFile(path, readFile)
		switch {
		case err != nil:
			report.Invalid++
			verdict.Verdict = verdictInvalid
			verdict.Detail = err.Error()
		default:
			report.Valid++
			key := recordIdentity(record)
			if first, ok := firstSeen[key]; ok {
				report.Redelivered++
				verdict.Verdict = verdictRedelivered
				verdict.Detail = "same source and url as " + first
			} else {
				firstSeen[key] = path
			}
		}
		report.Files = append(report.Files, verdict)
	}
	return report
}

func decodeRecordFile(path string, readFile func(string) ([]byte, error)) (*payloadschema.ContentRecord, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if !json.Valid(raw) {
		return nil, errors.New("malformed JSON")
	}
	return payloadschema.ValidateContentRecordPayload(json.RawMessage(raw))
}

// recordIdentity mirrors the store's uniqueness key for content records.
func recordIdentity(record *payloadschema.ContentRecord) string {
	canonical, _ := ingest.CanonicalURL(record.ExternalURL)
	if canonical == "" {
		canonical = strings.TrimSpace(record.ExternalURL)
	}
	return strings.TrimSpace(record.SourceID) + "\x00" + canonical
}

// collectJSONFiles lists .json files under root in lexical order. Dotfiles and
// dot-directories are skipped; without recursive only root's own files count.
func collectJSONFiles(root string, recursive bool) ([]string, error) {
	if root == "" {
		return nil, errors.New("directory path is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if path != root && (hidden || !recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", root, err)
	}

	slices.Sort(files)
	return files, nil
}
