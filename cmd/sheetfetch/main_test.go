package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sheetfetch/internal/batch"
	"sheetfetch/internal/config"
	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigInitWritesSampleOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to name %s, got %q", target, out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "cancel_policy") {
		t.Fatal("sample config missing batch section")
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestConfigValidateReportsSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCancelPolicy(config.CancelAbortBatch))
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	for _, want := range []string{path, cfg.Paths.DownloadDir, "abort_batch", "Configuration valid"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfigValidateRejectsBadPolicy(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCancelPolicy("sometimes"))
	path := writeTestConfig(t, cfg)

	if _, err := runCLI(t, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSuggestListsDirectMatches(t *testing.T) {
	out, err := runCLI(t, "suggest", "--instrument", "Clarinet 1/2", "--key", "C", "D")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !strings.Contains(out, "Trumpet 1,2") || !strings.Contains(out, "direct") {
		t.Fatalf("expected trumpet direct match:\n%s", out)
	}
	if strings.Contains(out, "Clarinet 1/2") {
		t.Fatalf("selected instrument must not be suggested:\n%s", out)
	}
}

func TestSuggestValidatesInput(t *testing.T) {
	cases := [][]string{
		{"suggest", "--instrument", "Kazoo", "--key", "C", "D"},
		{"suggest", "--instrument", "Viola", "--key", "H", "D"},
		{"suggest", "--instrument", "Viola", "--key", "C"},
		{"suggest", "D"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestSuggestListInstruments(t *testing.T) {
	out, err := runCLI(t, "suggest", "--list")
	if err != nil {
		t.Fatalf("suggest --list: %v", err)
	}
	if !strings.Contains(out, "French Horn 1/2") || !strings.Contains(out, "-7") {
		t.Fatalf("expected horn offset in table:\n%s", out)
	}
}

func seedBatch(t *testing.T, cfg *config.Config) *jobstore.Batch {
	t.Helper()
	ctx := context.Background()
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	root := filepath.Join(cfg.Paths.DownloadDir, "Batch_20260101_090000")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	entries := []sheet.Entry{
		{Title: "Holy Forever", Instrument: "French Horn 1/2", Key: "C"},
		{Title: "Missing Song", Instrument: "Viola", Key: "D"},
	}
	b, err := store.CreateBatch(ctx, "sunday", "sunday.csv", root, entries)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := store.RecordOutcome(ctx, b.ID, 0, jobstore.Outcome{Status: jobstore.StatusCompleted, OutputPath: filepath.Join(root, "holy.pdf")}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordOutcome(ctx, b.ID, 1, jobstore.Outcome{Status: jobstore.StatusNoResults, Detail: "no search results"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.FinishBatch(ctx, b.ID, jobstore.BatchCompleted); err != nil {
		t.Fatalf("finish: %v", err)
	}
	return b
}

func TestHistoryListsAndShowsBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No batches recorded") {
		t.Fatalf("expected empty history, got:\n%s", out)
	}

	b := seedBatch(t, cfg)

	out, err = runCLI(t, "--config", path, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "sunday") || !strings.Contains(out, "1/2") || !strings.Contains(out, shortID(b.ID)) {
		t.Fatalf("unexpected history listing:\n%s", out)
	}

	out, err = runCLI(t, "--config", path, "history", "latest")
	if err != nil {
		t.Fatalf("history latest: %v", err)
	}
	for _, want := range []string{"Holy Forever", "Missing Song", "no_results", "no search results"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, "--config", path, "history", "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown batch")
	}
}

func TestReportWritesWorkbook(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	b := seedBatch(t, cfg)

	out, err := runCLI(t, "--config", path, "report", shortID(b.ID))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	want := filepath.Join(b.RootDir, "report.xlsx")
	if !strings.Contains(out, want) {
		t.Fatalf("expected %s in output %q", want, out)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("report not written: %v", err)
	}

	custom := filepath.Join(t.TempDir(), "custom.xlsx")
	if _, err := runCLI(t, "--config", path, "report", "--output", custom); err != nil {
		t.Fatalf("report --output: %v", err)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Fatalf("custom report not written: %v", err)
	}
}

func TestHistoryPruneRemovesOldBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	seedBatch(t, cfg)

	out, err := runCLI(t, "--config", path, "history", "prune", "--older-than", "1ns")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out, "Removed 1 batch") {
		t.Fatalf("unexpected prune output %q", out)
	}
}

func TestCheckOfflineReportsMissingModels(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithStubbedBinaries(),
		testsupport.WithNtfyTopic("https://ntfy.example.com/sheets"),
	)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", path, "check", "--offline")
	if err == nil {
		t.Fatal("expected failure without model checkpoints")
	}
	for _, want := range []string{"Watermark model", "FAIL", "Enabled (ntfy.example.com)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in check output:\n%s", want, out)
		}
	}
}

func TestBatchRejectsInvalidList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	list := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(list, []byte("Holy Forever,French Horn 1/2,H\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	if _, err := runCLI(t, "--config", path, "batch", list); err == nil {
		t.Fatal("expected invalid key to be rejected before any session starts")
	}
}

func TestRenderSummaryShowsCountsAndRelativeOutput(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Batch_20260101_090000")
	summary := &batch.Summary{
		BatchID: "abc123",
		Name:    "sunday",
		RootDir: root,
		Results: []batch.Result{
			{Position: 0, Entry: sheet.Entry{Title: "Holy Forever", Instrument: "Viola", Key: "C"}, Status: jobstore.StatusCompleted, OutputPath: filepath.Join(root, "Holy Forever", "1_holy.pdf")},
			{Position: 1, Entry: sheet.Entry{Title: "Gone", Instrument: "Viola", Key: "D"}, Status: jobstore.StatusFailed, Detail: "catalog timeout"},
		},
		Aborted:  true,
		Duration: 90 * time.Second,
	}

	out := renderSummary(summary)
	for _, want := range []string{
		"Batch sunday (abc123)",
		filepath.Join("Holy Forever", "1_holy.pdf"),
		"catalog timeout",
		"1/2 completed in 1m30s",
		"completed=1 failed=1",
		"(stopped early)",
		"Output: " + root,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary:\n%s", want, out)
		}
	}
}
