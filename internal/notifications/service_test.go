package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hashsync/internal/config"
	"hashsync/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var requests []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyAlertOpened(context.Background(), notifications.AlertNotice{Title: "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Alerts = true
	cfg.Notifications.Merges = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifyAlertOpened(ctx, notifications.AlertNotice{
		AlertID: 7, SourceName: "Boston Calendar", Type: "CONSECUTIVE_FAILURES", Severity: "critical", Title: "3 failed scrapes",
	}); err != nil {
		t.Fatalf("NotifyAlertOpened: %v", err)
	}
	if err := svc.NotifyScrapeFailed(ctx, "Boston Calendar", 3, "timeout"); err != nil {
		t.Fatalf("NotifyScrapeFailed: %v", err)
	}
	if err := svc.NotifyMergeCompleted(ctx, notifications.MergeNotice{
		SourceKennel: "BH3x", TargetKennel: "BH3", Moved: map[string]int{"events": 2, "roster_entries": 1},
	}); err != nil {
		t.Fatalf("NotifyMergeCompleted: %v", err)
	}

	got := *requests
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	if got[0].title != "hashsync - CONSECUTIVE_FAILURES" || got[0].priority != "high" ||
		!strings.Contains(got[0].body, "Alert #7") || got[0].tags != "hashsync,alert,consecutive_failures" {
		t.Fatalf("unexpected alert payload %+v", got[0])
	}
	if got[1].body != "Scrape failed for Boston Calendar (3 in a row): timeout" {
		t.Fatalf("unexpected scrape payload %+v", got[1])
	}
	if got[2].body != "Merged BH3x into BH3 (3 records moved)" {
		t.Fatalf("unexpected merge payload %+v", got[2])
	}
}

func TestNtfyServiceRespectsToggles(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Alerts = false
	cfg.Notifications.Merges = true
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyAlertOpened(context.Background(), notifications.AlertNotice{Title: "x"}); err != nil {
		t.Fatalf("NotifyAlertOpened: %v", err)
	}
	if len(*requests) != 0 {
		t.Fatalf("expected alerts toggle to suppress delivery, got %d requests", len(*requests))
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Alerts = true
	svc := notifications.NewService(&cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
