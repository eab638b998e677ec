package adapter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"hashsync/internal/adapter"
	"hashsync/internal/store"
	"hashsync/internal/testsupport"
)

func TestJSONFeedFetchesArrayOverHTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"tag": "RH3", "date": "2026-01-15", "title": "Trail", "run_number": 2100},
			{"kennel": "NYCH3", "date": "1/22/26", "run_number": "#1999", "hares": "Just Ralph"},
			{"tag": "RH3", "title": "no date"},
			{"tag": 7, "date": "2026-01-29"}
		]`))
	}))
	defer srv.Close()

	feed := adapter.NewJSONFeedWithClient(srv.Client(), "hashsync-test")
	res, err := feed.Fetch(context.Background(), &store.Source{ID: 1, URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "hashsync-test" {
		t.Fatalf("expected user agent, got %q", gotUA)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d (%+v)", len(res.Events), res.Events)
	}
	if res.Events[0].Tag != "RH3" || res.Events[0].RunNumber == nil || *res.Events[0].RunNumber != 2100 {
		t.Fatalf("unexpected first event: %+v", res.Events[0])
	}
	if res.Events[1].Tag != "NYCH3" || *res.Events[1].RunNumber != 1999 || res.Events[1].Hares != "Just Ralph" {
		t.Fatalf("unexpected second event: %+v", res.Events[1])
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 per-event errors, got %v", res.Errors)
	}
	if !strings.HasPrefix(res.Errors[0], "event[2]") || !strings.HasPrefix(res.Errors[1], "event[3]") {
		t.Fatalf("errors should name the offending element: %v", res.Errors)
	}
}

func TestJSONFeedReadsObjectFromFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "feed.json"), `{
		"structure": ["calendar", "RH3", "NYCH3"],
		"events": [{"code": "RH3", "date": "Jan 15 2026"}]
	}`)

	feed := adapter.NewJSONFeed(cfg)
	src := &store.Source{URL: "file://" + path, Config: store.SourceConfig{Options: map[string]string{"tag_field": "code"}}}
	res, err := feed.Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Structure) != 3 || res.Structure[0] != "calendar" {
		t.Fatalf("unexpected structure: %v", res.Structure)
	}
	if len(res.Events) != 1 || res.Events[0].Tag != "RH3" || res.Events[0].Date != "Jan 15 2026" {
		t.Fatalf("unexpected events: %+v", res.Events)
	}
}

func TestJSONFeedFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()
	feed := adapter.NewJSONFeedWithClient(srv.Client(), "")

	tests := []struct {
		name string
		url  string
	}{
		{"http status", srv.URL},
		{"missing file", filepath.Join(t.TempDir(), "missing.json")},
		{"no url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := feed.Fetch(context.Background(), &store.Source{URL: tt.url}); err == nil {
				t.Fatal("expected fetch error")
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := adapter.NewRegistry(adapter.NewJSONFeedWithClient(http.DefaultClient, ""))
	if _, err := reg.Lookup(adapter.TypeJSONFeed); err != nil {
		t.Fatalf("Lookup json_feed: %v", err)
	}
	if _, err := reg.Lookup("ical"); err == nil {
		t.Fatal("expected error for unregistered type")
	}
	if got := reg.Types(); len(got) != 1 || got[0] != adapter.TypeJSONFeed {
		t.Fatalf("unexpected types: %v", got)
	}
}
