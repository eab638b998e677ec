package api

import (
	"encoding/json"
	"time"

	"hashsync/internal/alerts"
	"hashsync/internal/store"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromKennel converts a kennel record to its API representation.
func FromKennel(k *store.Kennel, aliases []store.Alias) Kennel {
	if k == nil {
		return Kennel{}
	}
	dto := Kennel{
		ID:          k.ID,
		ShortName:   k.ShortName,
		Slug:        k.Slug,
		FullName:    k.FullName,
		Region:      k.Region,
		Country:     k.Country,
		Website:     k.Website,
		Description: k.Description,
		FoundedYear: k.FoundedYear,
		CreatedAt:   formatTime(k.CreatedAt),
	}
	for _, a := range aliases {
		dto.Aliases = append(dto.Aliases, a.Alias)
	}
	return dto
}

// FromSource converts a source record to its API representation.
func FromSource(s *store.Source, kennelIDs []int64) Source {
	if s == nil {
		return Source{}
	}
	return Source{
		ID:                s.ID,
		Name:              s.Name,
		URL:               s.URL,
		Type:              s.Type,
		TrustLevel:        s.TrustLevel,
		Enabled:           s.Enabled,
		Config:            s.Config,
		LastScrapeAt:      formatTimePtr(s.LastScrapeAt),
		LastStructureHash: s.LastStructureHash,
		KennelIDs:         kennelIDs,
	}
}

// FromAlert converts an alert record to its API representation. A context
// that fails to encode is omitted.
func FromAlert(a *store.Alert) Alert {
	if a == nil {
		return Alert{}
	}
	dto := Alert{
		ID:             a.ID,
		SourceID:       a.SourceID,
		Type:           string(a.Type),
		Severity:       string(a.Severity),
		Status:         string(a.Status),
		Title:          a.Title,
		SnoozedUntil:   formatTimePtr(a.SnoozedUntil),
		AcknowledgedAt: formatTimePtr(a.AcknowledgedAt),
		AcknowledgedBy: a.AcknowledgedBy,
		ResolvedAt:     formatTimePtr(a.ResolvedAt),
		ResolvedBy:     a.ResolvedBy,
		CreatedAt:      formatTime(a.CreatedAt),
		UpdatedAt:      formatTime(a.UpdatedAt),
	}
	if raw, err := store.MarshalAlertContext(a.Context); err == nil && raw != "" {
		dto.Context = json.RawMessage(raw)
	}
	return dto
}

// FromAlerts converts a slice of alerts.
func FromAlerts(list []*store.Alert) []Alert {
	out := make([]Alert, 0, len(list))
	for _, a := range list {
		out = append(out, FromAlert(a))
	}
	return out
}

// FromRepairEntry converts a repair-log record.
func FromRepairEntry(e store.RepairEntry) RepairEntry {
	return RepairEntry{
		EntryID:   e.EntryID,
		Action:    string(e.Action),
		Timestamp: formatTime(e.Timestamp),
		Actor:     e.Actor,
		Result:    string(e.Result),
		Details:   e.Details,
	}
}

// FromAlertDetail converts an alert with its repair log.
func FromAlertDetail(d *alerts.Detail) AlertDetail {
	if d == nil {
		return AlertDetail{}
	}
	out := AlertDetail{
		Alert:   FromAlert(d.Alert),
		Repairs: make([]RepairEntry, 0, len(d.Repairs)),
	}
	if d.Source != nil {
		src := FromSource(d.Source, nil)
		out.Source = &src
	}
	for _, e := range d.Repairs {
		out.Repairs = append(out.Repairs, FromRepairEntry(e))
	}
	return out
}

// FromStats converts store row counts.
func FromStats(s store.Stats) StoreStats {
	return StoreStats(s)
}
