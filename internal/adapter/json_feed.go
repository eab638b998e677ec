package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"hashsync/internal/config"
	"hashsync/internal/store"
	"hashsync/internal/textutil"
)

// TypeJSONFeed is the source type served by JSONFeed.
const TypeJSONFeed = "json_feed"

const maxFeedBytes = 16 << 20

// HTTPDoer describes the HTTP client used by network adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// JSONFeed reads events from a JSON document at the source URL. The URL may
// be http(s), file://, or a plain filesystem path. The document is either an
// array of events or an object {"events": [...], "structure": [...]}.
//
// The tag is read from the field named by the source option "tag_field"
// (default "tag", with "kennel" as a fallback).
type JSONFeed struct {
	client    HTTPDoer
	userAgent string
}

// NewJSONFeed constructs the adapter with the configured fetch timeout and user agent.
func NewJSONFeed(cfg *config.Config) *JSONFeed {
	timeout := time.Duration(cfg.Scrape.FetchTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JSONFeed{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.Scrape.UserAgent,
	}
}

// NewJSONFeedWithClient constructs the adapter around a caller-supplied client.
func NewJSONFeedWithClient(client HTTPDoer, userAgent string) *JSONFeed {
	return &JSONFeed{client: client, userAgent: userAgent}
}

// Type implements Adapter.
func (f *JSONFeed) Type() string { return TypeJSONFeed }

// Fetch implements Adapter.
func (f *JSONFeed) Fetch(ctx context.Context, src *store.Source) (FetchResult, error) {
	if src == nil {
		return FetchResult{}, fmt.Errorf("json feed: source is nil")
	}
	body, err := f.read(ctx, strings.TrimSpace(src.URL))
	if err != nil {
		return FetchResult{}, err
	}
	return parseFeed(body, src.Config.Option("tag_field", "tag"))
}

func (f *JSONFeed) read(ctx context.Context, location string) ([]byte, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("json feed: source has no url")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return f.get(ctx, location)
	default:
		path := strings.TrimPrefix(location, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("json feed: read %s: %w", path, err)
		}
		return data, nil
	}
}

func (f *JSONFeed) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("json feed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("json feed: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("json feed: %s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("json feed: read body: %w", err)
	}
	return data, nil
}

type feedDocument struct {
	Events    []json.RawMessage `json:"events"`
	Structure []string          `json:"structure"`
}

func parseFeed(body []byte, tagField string) (FetchResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return FetchResult{}, fmt.Errorf("json feed: empty document")
	}
	var doc feedDocument
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &doc.Events); err != nil {
			return FetchResult{}, fmt.Errorf("json feed: decode array: %w", err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return FetchResult{}, fmt.Errorf("json feed: decode object: %w", err)
		}
	default:
		return FetchResult{}, fmt.Errorf("json feed: document is neither an array nor an object")
	}

	result := FetchResult{Structure: doc.Structure}
	for i, raw := range doc.Events {
		ev, err := decodeFeedEvent(raw, tagField)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("event[%d]: %v", i, err))
			continue
		}
		result.Events = append(result.Events, ev)
	}
	return result, nil
}

func decodeFeedEvent(raw json.RawMessage, tagField string) (RawEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RawEvent{}, fmt.Errorf("decode: %w", err)
	}
	var ev RawEvent
	var err error
	text := func(keys ...string) string {
		for _, key := range keys {
			value, ok := fields[key]
			if !ok || err != nil {
				continue
			}
			var s string
			if uerr := json.Unmarshal(value, &s); uerr != nil {
				err = fmt.Errorf("field %q: expected string", key)
				return ""
			}
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
		return ""
	}
	ev.Tag = text(tagField, "kennel")
	ev.Date = text("date")
	ev.Title = text("title")
	ev.Location = text("location")
	ev.StartTime = text("start_time")
	ev.Hares = text("hares")
	ev.SourceURL = text("url")
	if err != nil {
		return RawEvent{}, err
	}
	if ev.Date == "" {
		return RawEvent{}, fmt.Errorf("missing date")
	}
	if value, ok := fields["run_number"]; ok {
		n, err := decodeRunNumber(value)
		if err != nil {
			return RawEvent{}, err
		}
		ev.RunNumber = n
	}
	return ev, nil
}

func decodeRunNumber(value json.RawMessage) (*int, error) {
	if string(bytes.TrimSpace(value)) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(value, &n); err == nil {
		if n <= 0 {
			return nil, fmt.Errorf("run_number must be positive, got %d", n)
		}
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("run_number: expected number or string")
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parsed, ok := textutil.ParseRunNumber(s)
	if !ok {
		return nil, fmt.Errorf("run_number: cannot parse %q", s)
	}
	return &parsed, nil
}
