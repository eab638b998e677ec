package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const eventColumns = "id, kennel_id, date, run_number, title, location, start_time, hares, source_url, origin, source_id, trust_level, created_at, updated_at"

func scanEvent(scanner rowScanner) (*Event, error) {
	var (
		e          Event
		runNumber  sql.NullInt64
		title      sql.NullString
		location   sql.NullString
		startTime  sql.NullString
		hares      sql.NullString
		sourceURL  sql.NullString
		origin     string
		sourceID   sql.NullInt64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&e.ID, &e.KennelID, &e.Date, &runNumber, &title, &location, &startTime, &hares,
		&sourceURL, &origin, &sourceID, &e.TrustLevel, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	e.RunNumber = nullIntPtr(runNumber)
	e.Title = title.String
	e.Location = location.String
	e.StartTime = startTime.String
	e.Hares = hares.String
	e.SourceURL = sourceURL.String
	e.Origin = EventOrigin(origin)
	e.SourceID = sourceID.Int64
	e.CreatedAt = parseTime(createdRaw)
	e.UpdatedAt = parseTime(updatedRaw)
	return &e, nil
}

// UpsertOutcome reports what UpsertEvent did.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// FindEventByNaturalKey locates an event by (kennel, run number) when a run
// number is given, falling back to a numberless event on (kennel, date).
func (c conn) FindEventByNaturalKey(ctx context.Context, kennelID int64, date string, runNumber *int) (*Event, error) {
	if runNumber != nil {
		ev, err := c.queryEvent(ctx, "kennel_id = ? AND run_number = ?", kennelID, *runNumber)
		if err != nil || ev != nil {
			return ev, err
		}
		return c.queryEvent(ctx, "kennel_id = ? AND date = ? AND run_number IS NULL", kennelID, date)
	}
	return c.queryEvent(ctx, "kennel_id = ? AND date = ?", kennelID, date)
}

// UpsertEvent creates the event if its natural key is absent, otherwise
// updates the fields that changed. Empty incoming fields never blank stored
// values, and a lower trust level never overwrites a higher one. On return
// ev.ID holds the stored row id.
func (c conn) UpsertEvent(ctx context.Context, ev *Event) (UpsertOutcome, error) {
	if ev == nil || ev.KennelID == 0 || strings.TrimSpace(ev.Date) == "" {
		return UpsertUnchanged, errors.New("event requires kennel and date")
	}
	if ev.Origin == "" {
		ev.Origin = OriginScrape
	}
	existing, err := c.FindEventByNaturalKey(ctx, ev.KennelID, ev.Date, ev.RunNumber)
	if err != nil {
		return UpsertUnchanged, err
	}
	now := c.timestamp()
	if existing == nil {
		id, err := c.insert(ctx,
			`INSERT INTO events (kennel_id, date, run_number, title, location, start_time, hares, source_url, origin, source_id, trust_level, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.KennelID, ev.Date, nullableInt(ev.RunNumber), nullableString(ev.Title), nullableString(ev.Location),
			nullableString(ev.StartTime), nullableString(ev.Hares), nullableString(ev.SourceURL), string(ev.Origin),
			nullableInt64(ev.SourceID), ev.TrustLevel, now, now,
		)
		if err != nil {
			return UpsertUnchanged, fmt.Errorf("insert event: %w", err)
		}
		ev.ID = id
		ev.CreatedAt = parseTime(now)
		ev.UpdatedAt = ev.CreatedAt
		return UpsertCreated, nil
	}

	ev.ID = existing.ID
	if existing.TrustLevel > ev.TrustLevel {
		return UpsertUnchanged, nil
	}
	merged := *existing
	changed := false
	apply := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}
	apply(&merged.Date, ev.Date)
	apply(&merged.Title, ev.Title)
	apply(&merged.Location, ev.Location)
	apply(&merged.StartTime, ev.StartTime)
	apply(&merged.Hares, ev.Hares)
	apply(&merged.SourceURL, ev.SourceURL)
	if ev.RunNumber != nil && (merged.RunNumber == nil || *merged.RunNumber != *ev.RunNumber) {
		n := *ev.RunNumber
		merged.RunNumber = &n
		changed = true
	}
	if !changed {
		return UpsertUnchanged, nil
	}
	if _, err := c.execWithRetry(ctx,
		`UPDATE events SET date = ?, run_number = ?, title = ?, location = ?, start_time = ?, hares = ?, source_url = ?,
		 source_id = COALESCE(?, source_id), trust_level = ?, updated_at = ? WHERE id = ?`,
		merged.Date, nullableInt(merged.RunNumber), nullableString(merged.Title), nullableString(merged.Location),
		nullableString(merged.StartTime), nullableString(merged.Hares), nullableString(merged.SourceURL),
		nullableInt64(ev.SourceID), ev.TrustLevel, now, existing.ID,
	); err != nil {
		return UpsertUnchanged, fmt.Errorf("update event %d: %w", existing.ID, err)
	}
	return UpsertUpdated, nil
}

func (c conn) queryEvent(ctx context.Context, where string, args ...any) (*Event, error) {
	row := c.db.QueryRowContext(ensureContext(ctx), "SELECT "+eventColumns+" FROM events WHERE "+where+" ORDER BY id LIMIT 1", args...)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return ev, nil
}

// GetEvent fetches an event by id.
func (c conn) GetEvent(ctx context.Context, id int64) (*Event, error) {
	return c.queryEvent(ctx, "id = ?", id)
}

// EventsForKennels lists the events of the given kennels ordered by date.
func (c conn) EventsForKennels(ctx context.Context, kennelIDs []int64) ([]*Event, error) {
	if len(kennelIDs) == 0 {
		return nil, nil
	}
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT "+eventColumns+" FROM events WHERE kennel_id IN ("+makePlaceholders(len(kennelIDs))+") ORDER BY date, id",
		int64Args(kennelIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events, optionally for one kennel (0 = all).
func (c conn) CountEvents(ctx context.Context, kennelID int64) (int, error) {
	query := "SELECT COUNT(1) FROM events"
	var args []any
	if kennelID != 0 {
		query += " WHERE kennel_id = ?"
		args = append(args, kennelID)
	}
	var count int
	if err := c.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// DateConflict is a date on which two kennels both hold an event.
type DateConflict struct {
	Date          string
	SourceEventID int64
	TargetEventID int64
	SourceTitle   string
	TargetTitle   string
}

// SameDateEvents lists dates where both kennels have an event.
func (c conn) SameDateEvents(ctx context.Context, sourceKennelID, targetKennelID int64) ([]DateConflict, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		`SELECT a.date, a.id, b.id, COALESCE(a.title, ''), COALESCE(b.title, '')
		 FROM events a JOIN events b ON a.date = b.date
		 WHERE a.kennel_id = ? AND b.kennel_id = ?
		 ORDER BY a.date, a.id, b.id`,
		sourceKennelID, targetKennelID)
	if err != nil {
		return nil, fmt.Errorf("find date conflicts: %w", err)
	}
	defer rows.Close()
	var conflicts []DateConflict
	for rows.Next() {
		var dc DateConflict
		if err := rows.Scan(&dc.Date, &dc.SourceEventID, &dc.TargetEventID, &dc.SourceTitle, &dc.TargetTitle); err != nil {
			return nil, fmt.Errorf("scan date conflict: %w", err)
		}
		conflicts = append(conflicts, dc)
	}
	return conflicts, rows.Err()
}

// RawEventByFingerprint returns the tracked candidate for a source fingerprint.
func (c conn) RawEventByFingerprint(ctx context.Context, sourceID int64, fingerprint string) (*RawEvent, error) {
	row := c.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, source_id, fingerprint, data_json, event_id, processed, scraped_at
		 FROM raw_events WHERE source_id = ? AND fingerprint = ?`, sourceID, fingerprint)
	var (
		r          RawEvent
		eventID    sql.NullInt64
		processed  int
		scrapedRaw string
	)
	if err := row.Scan(&r.ID, &r.SourceID, &r.Fingerprint, &r.DataJSON, &eventID, &processed, &scrapedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query raw event: %w", err)
	}
	r.EventID = eventID.Int64
	r.Processed = processed != 0
	r.ScrapedAt = parseTime(scrapedRaw)
	return &r, nil
}

// RecordRawEvent inserts or refreshes a fingerprinted candidate.
func (c conn) RecordRawEvent(ctx context.Context, r *RawEvent) error {
	now := c.timestamp()
	_, err := c.execWithRetry(ctx,
		`INSERT INTO raw_events (source_id, fingerprint, data_json, event_id, processed, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, fingerprint) DO UPDATE SET
		   data_json = excluded.data_json,
		   event_id = COALESCE(excluded.event_id, raw_events.event_id),
		   processed = excluded.processed,
		   scraped_at = excluded.scraped_at`,
		r.SourceID, r.Fingerprint, r.DataJSON, nullableInt64(r.EventID), boolToInt(r.Processed), now,
	)
	if err != nil {
		return fmt.Errorf("record raw event: %w", err)
	}
	r.ScrapedAt = parseTime(now)
	return nil
}
