package preflight

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"sheetfetch/internal/config"
	"sheetfetch/internal/notifications"
)

// CheckNotificationsFromConfig evaluates the ntfy setup. With send set a test
// message is pushed to the topic.
func CheckNotificationsFromConfig(ctx context.Context, cfg *config.Config, send bool) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url %q", topic)}
	}
	if !send {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Enabled (%s)", parsed.Host)}
	}
	if err := notifications.NewService(cfg).TestNotification(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("test message failed (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Test message sent"}
}
