package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const alertColumns = "id, source_id, type, severity, status, title, context_json, snoozed_until, acknowledged_at, acknowledged_by, resolved_at, resolved_by, created_at, updated_at"

func scanAlert(scanner rowScanner) (*Alert, error) {
	var (
		a          Alert
		alertType  string
		severity   string
		status     string
		contextRaw sql.NullString
		snoozed    sql.NullString
		ackAt      sql.NullString
		ackBy      sql.NullString
		resolvedAt sql.NullString
		resolvedBy sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&a.ID, &a.SourceID, &alertType, &severity, &status, &a.Title, &contextRaw,
		&snoozed, &ackAt, &ackBy, &resolvedAt, &resolvedBy, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	a.Type = AlertType(alertType)
	a.Severity = Severity(severity)
	a.Status = AlertStatus(status)
	ctxValue, err := UnmarshalAlertContext(contextRaw.String)
	if err != nil {
		return nil, fmt.Errorf("alert %d: %w", a.ID, err)
	}
	a.Context = ctxValue
	a.SnoozedUntil = parseNullTime(snoozed)
	a.AcknowledgedAt = parseNullTime(ackAt)
	a.AcknowledgedBy = ackBy.String
	a.ResolvedAt = parseNullTime(resolvedAt)
	a.ResolvedBy = resolvedBy.String
	a.CreatedAt = parseTime(createdRaw)
	a.UpdatedAt = parseTime(updatedRaw)
	return &a, nil
}

// InsertAlert persists a new OPEN alert.
func (c conn) InsertAlert(ctx context.Context, a *Alert) error {
	if a == nil || a.SourceID == 0 || a.Type == "" {
		return errors.New("alert requires source and type")
	}
	if a.Status == "" {
		a.Status = AlertOpen
	}
	contextJSON, err := MarshalAlertContext(a.Context)
	if err != nil {
		return err
	}
	now := c.timestamp()
	id, err := c.insert(ctx,
		`INSERT INTO alerts (source_id, type, severity, status, title, context_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SourceID, string(a.Type), string(a.Severity), string(a.Status), a.Title, nullableString(contextJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	a.ID = id
	a.CreatedAt = parseTime(now)
	a.UpdatedAt = a.CreatedAt
	return nil
}

// GetAlert fetches an alert by id.
func (c conn) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	row := c.db.QueryRowContext(ensureContext(ctx), "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}
	return a, nil
}

// ActiveAlert returns the non-resolved alert for (source, type), if any.
func (c conn) ActiveAlert(ctx context.Context, sourceID int64, alertType AlertType) (*Alert, error) {
	row := c.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+alertColumns+" FROM alerts WHERE source_id = ? AND type = ? AND status != ? ORDER BY id DESC LIMIT 1",
		sourceID, string(alertType), string(AlertResolved))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active alert: %w", err)
	}
	return a, nil
}

// RefreshAlert rewrites an alert's context, severity, and title after a re-detection.
func (c conn) RefreshAlert(ctx context.Context, a *Alert) error {
	contextJSON, err := MarshalAlertContext(a.Context)
	if err != nil {
		return err
	}
	now := c.timestamp()
	if _, err := c.execWithRetry(ctx,
		"UPDATE alerts SET severity = ?, title = ?, context_json = ?, updated_at = ? WHERE id = ?",
		string(a.Severity), a.Title, nullableString(contextJSON), now, a.ID,
	); err != nil {
		return fmt.Errorf("refresh alert %d: %w", a.ID, err)
	}
	a.UpdatedAt = parseTime(now)
	return nil
}

// Transition describes a conditional status change.
type Transition struct {
	AlertID int64
	From    []AlertStatus
	To      AlertStatus
	Actor   string
	Until   *time.Time
}

// TransitionAlert moves an alert to t.To only when its current status is one
// of t.From. It reports whether the row changed, so concurrent callers
// observe the transition exactly once.
func (c conn) TransitionAlert(ctx context.Context, t Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, errors.New("transition requires source statuses")
	}
	now := c.timestamp()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(t.To), now}
	switch t.To {
	case AlertAcknowledged:
		sets = append(sets, "acknowledged_at = ?", "acknowledged_by = ?", "snoozed_until = NULL")
		args = append(args, now, nullableString(t.Actor))
	case AlertSnoozed:
		sets = append(sets, "snoozed_until = ?")
		args = append(args, nullableTime(t.Until))
	case AlertResolved:
		sets = append(sets, "resolved_at = ?", "resolved_by = ?", "snoozed_until = NULL")
		args = append(args, now, nullableString(t.Actor))
	case AlertOpen:
		sets = append(sets, "snoozed_until = NULL")
	}
	from := make([]any, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}
	args = append(args, t.AlertID)
	args = append(args, from...)
	res, err := c.execWithRetry(ctx,
		"UPDATE alerts SET "+strings.Join(sets, ", ")+" WHERE id = ? AND status IN ("+makePlaceholders(len(from))+")",
		args...)
	if err != nil {
		return false, fmt.Errorf("transition alert %d: %w", t.AlertID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	SourceID int64
	Types    []AlertType
	Statuses []AlertStatus
	Limit    int
}

// ListAlerts returns alerts newest first.
func (c conn) ListAlerts(ctx context.Context, f AlertFilter) ([]*Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts"
	var (
		clauses []string
		args    []any
	)
	if f.SourceID != 0 {
		clauses = append(clauses, "source_id = ?")
		args = append(args, f.SourceID)
	}
	if len(f.Types) > 0 {
		clauses = append(clauses, "type IN ("+makePlaceholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := c.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ExpiredSnoozes returns snoozed alerts whose wake time has passed.
func (c conn) ExpiredSnoozes(ctx context.Context, now time.Time) ([]*Alert, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		"SELECT "+alertColumns+" FROM alerts WHERE status = ? AND snoozed_until IS NOT NULL AND snoozed_until <= ? ORDER BY id",
		string(AlertSnoozed), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list expired snoozes: %w", err)
	}
	defer rows.Close()
	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AppendRepair adds one entry to an alert's repair log. An entry id already
// on record is a successful no-op and reports appended=false.
func (c conn) AppendRepair(ctx context.Context, e *RepairEntry) (bool, error) {
	if e == nil || e.AlertID == 0 || e.EntryID == "" || e.Action == "" {
		return false, errors.New("repair entry requires alert, entry id and action")
	}
	details, err := marshalJSON(e.Details)
	if err != nil {
		return false, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = parseTime(c.timestamp())
	}
	res, err := c.execWithRetry(ctx,
		`INSERT INTO alert_repairs (alert_id, entry_id, action, actor, details_json, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entry_id) DO NOTHING`,
		e.AlertID, e.EntryID, string(e.Action), e.Actor, details, string(e.Result),
		formatTime(e.Timestamp),
	)
	if err != nil {
		if IsDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("append repair for alert %d: %w", e.AlertID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return true, nil
}

// RepairLog returns an alert's repair entries in append order.
func (c conn) RepairLog(ctx context.Context, alertID int64) ([]RepairEntry, error) {
	rows, err := c.db.QueryContext(ensureContext(ctx),
		`SELECT id, alert_id, entry_id, action, actor, details_json, result, created_at
		 FROM alert_repairs WHERE alert_id = ? ORDER BY id`, alertID)
	if err != nil {
		return nil, fmt.Errorf("list repairs: %w", err)
	}
	defer rows.Close()
	var entries []RepairEntry
	for rows.Next() {
		var (
			e          RepairEntry
			action     string
			result     string
			details    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &e.EntryID, &action, &e.Actor, &details, &result, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan repair: %w", err)
		}
		e.Action = RepairAction(action)
		e.Result = RepairResult(result)
		if err := unmarshalJSON(details, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(createdRaw)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
