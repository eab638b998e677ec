package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hashsync/internal/config"
)

const userAgent = "hashsync/0.1.0"

// Service defines the notification surface exposed to the engines.
type Service interface {
	NotifyAlertOpened(ctx context.Context, alert AlertNotice) error
	NotifyScrapeFailed(ctx context.Context, sourceName string, consecutive int, cause string) error
	NotifyMergeCompleted(ctx context.Context, merge MergeNotice) error
	TestNotification(ctx context.Context) error
}

// AlertNotice describes a newly opened alert.
type AlertNotice struct {
	AlertID    int64
	SourceName string
	Type       string
	Severity   string
	Title      string
}

// MergeNotice describes a completed kennel merge.
type MergeNotice struct {
	SourceKennel string
	TargetKennel string
	Moved        map[string]int
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, or the relevant toggles are all off, a
// noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" || (!cfg.Notifications.Alerts && !cfg.Notifications.Merges) {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		alerts:   cfg.Notifications.Alerts,
		merges:   cfg.Notifications.Merges,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	alerts   bool
	merges   bool
}

func (n *ntfyService) NotifyAlertOpened(ctx context.Context, alert AlertNotice) error {
	if !n.alerts {
		return nil
	}
	priority := "default"
	switch alert.Severity {
	case "critical":
		priority = "high"
	case "info":
		priority = "low"
	}
	message := fmt.Sprintf("%s: %s", strings.TrimSpace(alert.SourceName), strings.TrimSpace(alert.Title))
	if alert.AlertID > 0 {
		message = fmt.Sprintf("%s\nAlert #%d", message, alert.AlertID)
	}
	return n.send(ctx, payload{
		title:    "hashsync - " + alert.Type,
		message:  message,
		tags:     []string{"hashsync", "alert", strings.ToLower(alert.Type)},
		priority: priority,
	})
}

func (n *ntfyService) NotifyScrapeFailed(ctx context.Context, sourceName string, consecutive int, cause string) error {
	if !n.alerts {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Scrape failed for ")
	builder.WriteString(strings.TrimSpace(sourceName))
	if consecutive > 1 {
		fmt.Fprintf(&builder, " (%d in a row)", consecutive)
	}
	if cause = strings.TrimSpace(cause); cause != "" {
		builder.WriteString(": ")
		builder.WriteString(cause)
	}
	return n.send(ctx, payload{
		title:    "hashsync - Scrape Failed",
		message:  builder.String(),
		tags:     []string{"hashsync", "scrape", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyMergeCompleted(ctx context.Context, merge MergeNotice) error {
	if !n.merges {
		return nil
	}
	moved := 0
	for _, count := range merge.Moved {
		moved += count
	}
	return n.send(ctx, payload{
		title:   "hashsync - Kennels Merged",
		message: fmt.Sprintf("Merged %s into %s (%d records moved)", merge.SourceKennel, merge.TargetKennel, moved),
		tags:    []string{"hashsync", "merge", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "hashsync - Test",
		message:  "Notification system test",
		tags:     []string{"hashsync", "test"},
		priority: "low",
	})
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

func (noopService) NotifyAlertOpened(context.Context, AlertNotice) error          { return nil }
func (noopService) NotifyScrapeFailed(context.Context, string, int, string) error { return nil }
func (noopService) NotifyMergeCompleted(context.Context, MergeNotice) error       { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
