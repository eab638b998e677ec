package api

import (
	"encoding/json"

	"hashsync/internal/alerts"
	"hashsync/internal/scrape"
	"hashsync/internal/store"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Kennel describes a kennel in a transport-friendly format.
type Kennel struct {
	ID          int64    `json:"id"`
	ShortName   string   `json:"short_name"`
	Slug        string   `json:"slug"`
	FullName    string   `json:"full_name"`
	Region      string   `json:"region,omitempty"`
	Country     string   `json:"country,omitempty"`
	Website     string   `json:"website,omitempty"`
	Description string   `json:"description,omitempty"`
	FoundedYear *int     `json:"founded_year,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// Source describes an event source.
type Source struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	URL               string             `json:"url,omitempty"`
	Type              string             `json:"type"`
	TrustLevel        int                `json:"trust_level"`
	Enabled           bool               `json:"enabled"`
	Config            store.SourceConfig `json:"config"`
	LastScrapeAt      string             `json:"last_scrape_at,omitempty"`
	LastStructureHash string             `json:"last_structure_hash,omitempty"`
	KennelIDs         []int64            `json:"kennel_ids,omitempty"`
}

// Alert describes one detected anomaly.
type Alert struct {
	ID             int64           `json:"id"`
	SourceID       int64           `json:"source_id"`
	Type           string          `json:"type"`
	Severity       string          `json:"severity"`
	Status         string          `json:"status"`
	Title          string          `json:"title"`
	Context        json.RawMessage `json:"context,omitempty"`
	SnoozedUntil   string          `json:"snoozed_until,omitempty"`
	AcknowledgedAt string          `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	ResolvedAt     string          `json:"resolved_at,omitempty"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// RepairEntry is one repair-log record.
type RepairEntry struct {
	EntryID   string              `json:"entry_id"`
	Action    string              `json:"action"`
	Timestamp string              `json:"timestamp"`
	Actor     string              `json:"actor"`
	Result    string              `json:"result"`
	Details   store.RepairDetails `json:"details"`
}

// AlertDetail is an alert with its source and repair history.
type AlertDetail struct {
	Alert   Alert         `json:"alert"`
	Source  *Source       `json:"source,omitempty"`
	Repairs []RepairEntry `json:"repairs"`
}

// AlertListResponse wraps a collection of alerts.
type AlertListResponse struct {
	Alerts []Alert `json:"alerts"`
}

// AlertResponse wraps a single alert.
type AlertResponse struct {
	Alert Alert `json:"alert"`
}

// KennelListResponse wraps a collection of kennels.
type KennelListResponse struct {
	Kennels []Kennel `json:"kennels"`
}

// SourceListResponse wraps a collection of sources.
type SourceListResponse struct {
	Sources []Source `json:"sources"`
}

// StoreStats mirrors store row counts.
type StoreStats struct {
	Kennels       int `json:"kennels"`
	Aliases       int `json:"aliases"`
	Sources       int `json:"sources"`
	Events        int `json:"events"`
	ActiveAlerts  int `json:"active_alerts"`
	RosterEntries int `json:"roster_entries"`
	Attendances   int `json:"attendances"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool       `json:"running"`
	PID          int        `json:"pid"`
	DatabasePath string     `json:"database_path"`
	LockFilePath string     `json:"lock_file_path"`
	Adapters     []string   `json:"adapters"`
	Stats        StoreStats `json:"stats"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int `json:"count"`
}

// ScrapeRequest triggers a scrape. SourceID zero scrapes every enabled source.
type ScrapeRequest struct {
	SourceID int64 `json:"source_id"`
	Force    bool  `json:"force"`
}

// ScrapeResponse lists the runs a scrape request produced. Error joins the
// sources that could not start.
type ScrapeResponse struct {
	Runs  []scrape.RunResult `json:"runs"`
	Error string             `json:"error,omitempty"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ResolveRequest resolves a tag, optionally in a source's context.
type ResolveRequest struct {
	Tag      string `json:"tag"`
	SourceID int64  `json:"source_id,omitempty"`
}

// SnoozeRequest snoozes an alert until Until (RFC3339) or for Hours.
// Both empty means the configured default.
type SnoozeRequest struct {
	Until string `json:"until,omitempty"`
	Hours int    `json:"hours,omitempty"`
}

// RescrapeRequest carries the rescrape repair arguments.
type RescrapeRequest struct {
	Force bool `json:"force"`
}

// AliasRequest carries the create_alias repair arguments.
type AliasRequest struct {
	Tag      string `json:"tag"`
	KennelID int64  `json:"kennel_id"`
}

// CreateKennelRequest carries the create_kennel repair arguments.
type CreateKennelRequest struct {
	Tag    string             `json:"tag"`
	Kennel alerts.KennelInput `json:"kennel"`
}

// LinkRequest carries the link_kennel_to_source repair arguments.
type LinkRequest struct {
	Tag string `json:"tag"`
}

// MergeRequest merges SourceID into TargetID, or previews the merge.
type MergeRequest struct {
	SourceID int64 `json:"source_id"`
	TargetID int64 `json:"target_id"`
	Preview  bool  `json:"preview"`
}

// ImportRequest uploads attendance CSV text for one kennel.
type ImportRequest struct {
	KennelID  int64   `json:"kennel_id"`
	CSV       string  `json:"csv"`
	Threshold float64 `json:"threshold,omitempty"`
	DryRun    bool    `json:"dry_run"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
