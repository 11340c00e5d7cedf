package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sheetfetch/internal/config"
	"sheetfetch/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyBatchCompleted(context.Background(), notifications.BatchResult{Name: "Batch"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	if err := svc.NotifyBatchCompleted(ctx, notifications.BatchResult{Name: "Batch_20240101_120000", Total: 3, Completed: 3, Duration: 90 * time.Second}); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyBatchCompleted(ctx, notifications.BatchResult{Name: "Batch_X", Total: 3, Completed: 1, Unresolved: 1, Failed: 1}); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyScoreSaved(ctx, "Holy", "/tmp/holy.pdf"); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyError(ctx, errors.New("browser crashed"), "Holy"); err != nil {
		t.Fatal(err)
	}

	if len(*got) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(*got))
	}
	tests := []struct {
		title    string
		body     string
		tags     string
		priority string
	}{
		{"sheetfetch - Batch Complete", "🎼 Batch_20240101_120000: 3 of 3 songs saved in 1m30s", "sheetfetch,batch,completed", ""},
		{"sheetfetch - Batch Complete (with issues)", "🎼 Batch_X: 1 saved, 1 without output, 1 failed in 0s", "sheetfetch,batch,completed", ""},
		{"sheetfetch - Score Saved", "✅ Score saved: Holy\nFile: /tmp/holy.pdf", "sheetfetch,score,saved", ""},
		{"sheetfetch - Error", "❌ Error with Holy: browser crashed", "sheetfetch,error,alert", "high"},
	}
	for i, want := range tests {
		c := (*got)[i]
		if c.title != want.title || c.body != want.body || c.tags != want.tags || c.priority != want.priority {
			t.Errorf("request %d = %+v, want %+v", i, c, want)
		}
	}
}

func TestNtfyServiceHonorsToggles(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.BatchCompleted = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	_ = svc.NotifyBatchCompleted(context.Background(), notifications.BatchResult{Name: "B"})
	_ = svc.NotifyError(context.Background(), errors.New("x"), "")
	if len(*got) != 0 {
		t.Fatalf("disabled events should not be sent, got %d", len(*got))
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
