package logging_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sheetfetch/internal/config"
	"sheetfetch/internal/logging"
)

func readJournal(t *testing.T, dir string) []map[string]any {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "sheetfetch.log"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("journal line is not JSON: %v (%q)", err, scanner.Text())
		}
		records = append(records, record)
	}
	return records
}

func TestJournalKeepsRecordsBelowConsoleLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "error"

	logger, err := logging.NewFromConfig(&cfg, "run-7")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	batchLogger := logging.NewComponentLogger(logger, "batch").With(logging.String(logging.FieldSong, "Holy"))
	batchLogger.Debug("page fetched", logging.Int("page", 2), logging.Duration("elapsed", 1500*time.Millisecond))
	batchLogger.Warn("candidate failed; trying next")

	records := readJournal(t, cfg.Paths.LogDir)
	if len(records) != 2 {
		t.Fatalf("expected both records in the journal, got %d", len(records))
	}
	first := records[0]
	if first["msg"] != "page fetched" || first["level"] != "debug" {
		t.Fatalf("unexpected first record %v", first)
	}
	if first["elapsed"] != "1.5s" {
		t.Fatalf("duration not rendered as text: %v", first["elapsed"])
	}
	if first[logging.FieldComponent] != "batch" || first[logging.FieldSong] != "Holy" || first[logging.FieldRunID] != "run-7" {
		t.Fatalf("attributes missing from journal: %v", first)
	}
	source, _ := first["source"].(string)
	if !strings.HasPrefix(source, "logging/journal_test.go:") {
		t.Fatalf("source = %q, want package/file:line", source)
	}
	ts, _ := first["ts"].(string)
	if _, err := time.Parse("2006-01-02T15:04:05.000Z", ts); err != nil {
		t.Fatalf("ts %q not in journal layout: %v", ts, err)
	}
	if records[1]["level"] != "warn" {
		t.Fatalf("unexpected second record %v", records[1])
	}
}

func TestJournalAppendsAcrossRuns(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.Level = "error"

	for _, run := range []string{"run-1", "run-2"} {
		logger, err := logging.NewFromConfig(&cfg, run)
		if err != nil {
			t.Fatalf("NewFromConfig(%s): %v", run, err)
		}
		logger.Info("batch started")
	}

	records := readJournal(t, cfg.Paths.LogDir)
	if len(records) != 2 || records[0][logging.FieldRunID] != "run-1" || records[1][logging.FieldRunID] != "run-2" {
		t.Fatalf("expected one record per run in order, got %v", records)
	}
}
