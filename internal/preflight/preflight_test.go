package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sheetfetch/internal/config"
	"sheetfetch/internal/deps"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckModelDir(t *testing.T) {
	dir := t.TempDir()
	if result := CheckModelDir("model", dir); result.Passed {
		t.Fatal("expected failure for empty model dir")
	}
	for _, name := range []string{"model_epoch_2.safetensors", "model_epoch_10.safetensors", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	result := CheckModelDir("model", dir)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "2 checkpoints") || !strings.Contains(result.Detail, "model_epoch_10") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckCatalog_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "sheetfetch-check" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), srv.URL, "sheetfetch-check")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCatalog_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	result := CheckCatalog(context.Background(), srv.URL, "")
	if result.Passed || !strings.Contains(result.Detail, "blocked") {
		t.Fatalf("expected blocked failure, got %+v", result)
	}
}

func TestCheckCatalog_MissingURL(t *testing.T) {
	if result := CheckCatalog(context.Background(), "", ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Options{}); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "chromium"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir)

	cfg := config.Default()
	cfg.Paths.DownloadDir = t.TempDir()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Models.WatermarkDir = t.TempDir()
	cfg.Models.UpscaleDir = t.TempDir()
	cfg.Catalog.BaseURL = srv.URL
	for _, dir := range []string{cfg.Models.WatermarkDir, cfg.Models.UpscaleDir} {
		if err := os.WriteFile(filepath.Join(dir, "model_epoch_1.safetensors"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	results := RunAll(context.Background(), &cfg, Options{})
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	short := RunAll(context.Background(), &cfg, Options{SkipNetwork: true})
	if len(short) != 7 {
		t.Fatalf("expected network check to be skipped, got %d results", len(short))
	}
}

func TestFailedIgnoresOptionalResults(t *testing.T) {
	results := []Result{
		{Name: "Browser", Passed: true},
		FromStatus(deps.Status{Name: "Folder opener", Optional: true, Detail: "no graphical session"}),
		{Name: "Log directory", Detail: "not writable"},
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Log directory" {
		t.Fatalf("Failed = %+v", failed)
	}
	if !results[1].Optional || results[1].Detail != "no graphical session" {
		t.Fatalf("optional status not carried: %+v", results[1])
	}
}

func TestCheckNotificationsFromConfig(t *testing.T) {
	cfg := config.Default()
	if result := CheckNotificationsFromConfig(context.Background(), &cfg, false); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("expected disabled pass, got %+v", result)
	}

	cfg.Notifications.NtfyTopic = "not a url"
	if result := CheckNotificationsFromConfig(context.Background(), &cfg, false); result.Passed {
		t.Fatal("expected invalid topic to fail")
	}

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	cfg.Notifications.NtfyTopic = srv.URL + "/sheetfetch"
	if result := CheckNotificationsFromConfig(context.Background(), &cfg, true); !result.Passed {
		t.Fatalf("expected test message to pass, got %+v", result)
	}
	if hits != 1 {
		t.Fatalf("expected one test message, got %d", hits)
	}
}
