package api

import (
	"encoding/json"
	"testing"
	"time"

	"hashsync/internal/alerts"
	"hashsync/internal/store"
)

func TestFromAlertKeepsContextEnvelope(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	until := created.Add(24 * time.Hour)
	a := &store.Alert{
		ID:           7,
		SourceID:     3,
		Type:         store.AlertUnmatchedTags,
		Severity:     store.SeverityWarning,
		Status:       store.AlertSnoozed,
		Title:        "2 unmatched tags",
		Context:      store.UnmatchedTagsContext{Tags: []string{"Rumson", "BFM"}},
		SnoozedUntil: &until,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	dto := FromAlert(a)
	if dto.Type != "UNMATCHED_TAGS" || dto.Status != "SNOOZED" || dto.Severity != "warning" {
		t.Fatalf("unexpected enum rendering: %+v", dto)
	}
	if dto.CreatedAt != "2026-03-01T17:00:00.000Z" {
		t.Fatalf("expected UTC millisecond timestamp, got %q", dto.CreatedAt)
	}
	if dto.SnoozedUntil != "2026-03-02T17:00:00.000Z" {
		t.Fatalf("unexpected snoozed_until %q", dto.SnoozedUntil)
	}
	if dto.ResolvedAt != "" || dto.AcknowledgedAt != "" {
		t.Fatalf("expected unset timestamps to stay empty: %+v", dto)
	}

	var env struct {
		Type string `json:"type"`
		Data struct {
			Tags []string `json:"tags"`
		} `json:"data"`
	}
	if err := json.Unmarshal(dto.Context, &env); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if env.Type == "" || len(env.Data.Tags) != 2 {
		t.Fatalf("unexpected context envelope %s", dto.Context)
	}
}

func TestFromAlertWithoutContext(t *testing.T) {
	dto := FromAlert(&store.Alert{ID: 1, Type: store.AlertScrapeFailure})
	if dto.Context != nil {
		t.Fatalf("expected no context, got %s", dto.Context)
	}
	if got := FromAlert(nil); got.ID != 0 {
		t.Fatalf("expected zero DTO for nil alert, got %+v", got)
	}
}

func TestFromAlertDetailIncludesRepairs(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	detail := &alerts.Detail{
		Alert:  &store.Alert{ID: 4, SourceID: 2, Type: store.AlertUnmatchedTags},
		Source: &store.Source{ID: 2, Name: "Rumson Calendar", Type: "json_feed", Enabled: true},
		Repairs: []store.RepairEntry{{
			EntryID:   "req-1:4:create_alias",
			Action:    store.RepairCreateAlias,
			Timestamp: stamp,
			Actor:     "ops",
			Result:    store.RepairSucceeded,
			Details:   store.RepairDetails{Tag: "Rumson", KennelID: 9},
		}},
	}

	dto := FromAlertDetail(detail)
	if dto.Source == nil || dto.Source.Name != "Rumson Calendar" {
		t.Fatalf("expected source in detail, got %+v", dto.Source)
	}
	if len(dto.Repairs) != 1 {
		t.Fatalf("expected 1 repair, got %d", len(dto.Repairs))
	}
	entry := dto.Repairs[0]
	if entry.Action != "create_alias" || entry.Result != "success" || entry.Details.KennelID != 9 {
		t.Fatalf("unexpected repair entry %+v", entry)
	}
	if entry.Timestamp != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected timestamp %q", entry.Timestamp)
	}
}

func TestFromKennelCollectsAliases(t *testing.T) {
	year := 1985
	k := &store.Kennel{ID: 1, ShortName: "RH3", Slug: "rh3", FullName: "Rumson H3", FoundedYear: &year}
	dto := FromKennel(k, []store.Alias{{Alias: "Rumson"}, {Alias: "Rumson Hash"}})
	if len(dto.Aliases) != 2 || dto.Aliases[1] != "Rumson Hash" {
		t.Fatalf("unexpected aliases %v", dto.Aliases)
	}
	if dto.FoundedYear == nil || *dto.FoundedYear != 1985 {
		t.Fatalf("expected founded year, got %v", dto.FoundedYear)
	}
}
