package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sheetfetch/internal/config"
)

const userAgent = "sheetfetch/0.1.0"

// BatchResult is the outcome summary carried by a batch-complete message.
type BatchResult struct {
	Name      string
	Total     int
	Completed int
	// Unresolved counts entries that ended without a saved score: no
	// results, no valid output, or canceled.
	Unresolved int
	Failed     int
	Duration   time.Duration
}

// Service defines the notification surface exposed to the batch runner.
type Service interface {
	NotifyBatchStarted(ctx context.Context, name string, entries int) error
	NotifyBatchCompleted(ctx context.Context, result BatchResult) error
	NotifyScoreSaved(ctx context.Context, title, path string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		batchCompleted: cfg.Notifications.BatchCompleted,
		errors:         cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	batchCompleted bool
	errors         bool
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, name string, entries int) error {
	data := payload{
		title:    "sheetfetch - Batch Started",
		message:  fmt.Sprintf("Started %s with %d songs", strings.TrimSpace(name), entries),
		tags:     []string{"sheetfetch", "batch", "started"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, result BatchResult) error {
	if !n.batchCompleted {
		return nil
	}
	duration := result.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	title := "sheetfetch - Batch Complete"
	message := fmt.Sprintf("🎼 %s: %d of %d songs saved in %s", result.Name, result.Completed, result.Total, durationText)
	if result.Failed > 0 || result.Unresolved > 0 {
		title = "sheetfetch - Batch Complete (with issues)"
		message = fmt.Sprintf("🎼 %s: %d saved, %d without output, %d failed in %s",
			result.Name, result.Completed, result.Unresolved, result.Failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"sheetfetch", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScoreSaved(ctx context.Context, title, path string) error {
	message := fmt.Sprintf("✅ Score saved: %s", strings.TrimSpace(title))
	if path = strings.TrimSpace(path); path != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, path)
	}
	data := payload{
		title:   "sheetfetch - Score Saved",
		message: message,
		tags:    []string{"sheetfetch", "score", "saved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "sheetfetch - Error",
		message:  builder.String(),
		tags:     []string{"sheetfetch", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "sheetfetch - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"sheetfetch", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, string, int) error   { return nil }
func (noopService) NotifyBatchCompleted(context.Context, BatchResult) error { return nil }
func (noopService) NotifyScoreSaved(context.Context, string, string) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
