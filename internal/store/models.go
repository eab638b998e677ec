package store

import (
	"strings"
	"time"
)

// Kennel is the canonical organizer record.
type Kennel struct {
	ID          int64
	ShortName   string
	Slug        string
	FullName    string
	Region      string
	Country     string
	Website     string
	Description string
	FoundedYear *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Alias is an alternate spelling that resolves to one kennel.
type Alias struct {
	ID        int64
	KennelID  int64
	Alias     string
	CreatedAt time.Time
}

// TagPattern maps tags matching Pattern (case-insensitive regex) to the
// kennel with short name Kennel.
type TagPattern struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Kennel  string `json:"kennel" yaml:"kennel"`
}

// SourceConfig is the adapter-specific configuration stored with a source.
type SourceConfig struct {
	Patterns   []TagPattern      `json:"patterns,omitempty" yaml:"patterns"`
	DefaultTag string            `json:"default_tag,omitempty" yaml:"default_tag"`
	Options    map[string]string `json:"options,omitempty" yaml:"options"`
}

// Option returns an adapter option or fallback when unset.
func (c SourceConfig) Option(key, fallback string) string {
	if v, ok := c.Options[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// Source is an external origin of events.
type Source struct {
	ID                int64
	Name              string
	URL               string
	Type              string
	TrustLevel        int
	Config            SourceConfig
	Enabled           bool
	LastScrapeAt      *time.Time
	LastStructureHash string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SourceKennel records that a source may legitimately emit events for a kennel.
type SourceKennel struct {
	ID        int64
	SourceID  int64
	KennelID  int64
	CreatedAt time.Time
}

// EventOrigin flags how an event entered the store.
type EventOrigin string

const (
	OriginScrape EventOrigin = "scrape"
	OriginManual EventOrigin = "manual"
)

// Event is a canonical scheduled run.
type Event struct {
	ID         int64
	KennelID   int64
	Date       string
	RunNumber  *int
	Title      string
	Location   string
	StartTime  string
	Hares      string
	SourceURL  string
	Origin     EventOrigin
	SourceID   int64
	TrustLevel int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RawEvent tracks a fingerprinted adapter candidate for a source.
type RawEvent struct {
	ID          int64
	SourceID    int64
	Fingerprint string
	DataJSON    string
	EventID     int64
	Processed   bool
	ScrapedAt   time.Time
}

// RunStatus is the outcome of one scrape run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ScrapeLog records the statistics of one scrape run.
type ScrapeLog struct {
	ID             int64
	RunID          string
	SourceID       int64
	Status         RunStatus
	Forced         bool
	StartedAt      time.Time
	FinishedAt     time.Time
	EventsFound    int
	Created        int
	Updated        int
	Skipped        int
	UnmatchedTags  []string
	MismatchedTags []string
	Errors         []string
	FillRates      map[string]float64
	StructureHash  string
}

// Succeeded reports whether the fetch completed.
func (l *ScrapeLog) Succeeded() bool {
	return l != nil && l.Status == RunSuccess
}

// AlertType enumerates detected anomalies.
type AlertType string

const (
	AlertUnmatchedTags        AlertType = "UNMATCHED_TAGS"
	AlertEventCountAnomaly    AlertType = "EVENT_COUNT_ANOMALY"
	AlertFieldFillDrop        AlertType = "FIELD_FILL_DROP"
	AlertStructureChange      AlertType = "STRUCTURE_CHANGE"
	AlertScrapeFailure        AlertType = "SCRAPE_FAILURE"
	AlertConsecutiveFailures  AlertType = "CONSECUTIVE_FAILURES"
	AlertSourceKennelMismatch AlertType = "SOURCE_KENNEL_MISMATCH"
)

// Severity ranks alert urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertSnoozed      AlertStatus = "SNOOZED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// ActiveAlertStatuses lists every non-terminal status.
var ActiveAlertStatuses = []AlertStatus{AlertOpen, AlertAcknowledged, AlertSnoozed}

// ParseAlertStatus normalizes user input into a known status.
func ParseAlertStatus(value string) (AlertStatus, bool) {
	status := AlertStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case AlertOpen, AlertAcknowledged, AlertSnoozed, AlertResolved:
		return status, true
	}
	return "", false
}

// Alert is a detected anomaly tied to one source.
type Alert struct {
	ID             int64
	SourceID       int64
	Type           AlertType
	Severity       Severity
	Status         AlertStatus
	Title          string
	Context        AlertContext
	SnoozedUntil   *time.Time
	AcknowledgedAt *time.Time
	AcknowledgedBy string
	ResolvedAt     *time.Time
	ResolvedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive reports whether the alert is in a non-terminal state.
func (a *Alert) IsActive() bool {
	return a != nil && a.Status != AlertResolved
}

// RepairAction names an operator remediation.
type RepairAction string

const (
	RepairRescrape      RepairAction = "rescrape"
	RepairCreateAlias   RepairAction = "create_alias"
	RepairCreateKennel  RepairAction = "create_kennel"
	RepairLinkKennel    RepairAction = "link_kennel_to_source"
	RepairExternalIssue RepairAction = "file_external_issue"
)

// RepairResult is the outcome of a repair action.
type RepairResult string

const (
	RepairSucceeded RepairResult = "success"
	RepairFailed    RepairResult = "failure"
	RepairNoop      RepairResult = "noop"
)

// RepairDetails carries the action-specific arguments of a repair.
type RepairDetails struct {
	Tag      string `json:"tag,omitempty"`
	KennelID int64  `json:"kennel_id,omitempty"`
	Kennel   string `json:"kennel,omitempty"`
	Force    bool   `json:"force,omitempty"`
	IssueURL string `json:"issue_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// RepairEntry is one append-only repair-log record.
type RepairEntry struct {
	ID        int64
	AlertID   int64
	EntryID   string
	Action    RepairAction
	Timestamp time.Time
	Actor     string
	Details   RepairDetails
	Result    RepairResult
}

// Role is a kennel membership rank.
type Role string

const (
	RoleMember Role = "MEMBER"
	RoleMisman Role = "MISMAN"
	RoleAdmin  Role = "ADMIN"
)

// Rank orders roles; higher wins.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleMisman:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Membership grants a user a role under a kennel.
type Membership struct {
	ID        int64
	UserID    string
	KennelID  int64
	Role      Role
	CreatedAt time.Time
}

// RosterGroup lets several kennels share one roster.
type RosterGroup struct {
	ID   int64
	Name string
}

// RosterEntry is one hasher on a kennel's roster.
type RosterEntry struct {
	ID        int64
	KennelID  int64
	HashName  string
	NerdName  string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PopulatedFields counts the non-empty optional fields.
func (e RosterEntry) PopulatedFields() int {
	count := 0
	for _, v := range []string{e.NerdName, e.Email, e.Phone, e.Notes} {
		if strings.TrimSpace(v) != "" {
			count++
		}
	}
	return count
}

// FillFrom copies other's optional fields into empty fields of e.
func (e *RosterEntry) FillFrom(other RosterEntry) {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	fill(&e.NerdName, other.NerdName)
	fill(&e.Email, other.Email)
	fill(&e.Phone, other.Phone)
	fill(&e.Notes, other.Notes)
}

// Attendance records one hasher at one event.
type Attendance struct {
	ID            int64
	EventID       int64
	RosterEntryID int64
	Attended      bool
	Paid          bool
	Hared         bool
	RecordedBy    string
	CreatedAt     time.Time
}

// ExternalRequest is a pending roster-access request against a kennel.
type ExternalRequest struct {
	ID        int64
	KennelID  int64
	UserID    string
	Message   string
	Status    string
	CreatedAt time.Time
}
