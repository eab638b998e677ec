package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const scrapeLogColumns = "id, run_id, source_id, status, forced, started_at, finished_at, events_found, created, updated, skipped, unmatched_tags_json, mismatched_tags_json, errors_json, fill_rates_json, structure_hash"

func scanScrapeLog(scanner rowScanner) (*ScrapeLog, error) {
	var (
		l           ScrapeLog
		status      string
		forced      int
		startedRaw  string
		finishedRaw string
		unmatched   sql.NullString
		mismatched  sql.NullString
		errorsRaw   sql.NullString
		fillRates   sql.NullString
		hash        sql.NullString
	)
	if err := scanner.Scan(&l.ID, &l.RunID, &l.SourceID, &status, &forced, &startedRaw, &finishedRaw,
		&l.EventsFound, &l.Created, &l.Updated, &l.Skipped, &unmatched, &mismatched, &errorsRaw, &fillRates, &hash); err != nil {
		return nil, err
	}
	l.Status = RunStatus(status)
	l.Forced = forced != 0
	l.StartedAt = parseTime(startedRaw)
	l.FinishedAt = parseTime(finishedRaw)
	l.StructureHash = hash.String
	for _, field := range []struct {
		raw    sql.NullString
		target any
	}{
		{unmatched, &l.UnmatchedTags},
		{mismatched, &l.MismatchedTags},
		{errorsRaw, &l.Errors},
		{fillRates, &l.FillRates},
	} {
		if err := unmarshalJSON(field.raw, field.target); err != nil {
			return nil, fmt.Errorf("scrape log %s: %w", l.RunID, err)
		}
	}
	return &l, nil
}

// InsertScrapeLog persists a finished run.
func (c conn) InsertScrapeLog(ctx context.Context, l *ScrapeLog) error {
	if l == nil || l.RunID == "" || l.SourceID == 0 {
		return errors.New("scrape log requires run id and source")
	}
	encoded := make([]any, 0, 4)
	for _, value := range []any{l.UnmatchedTags, l.MismatchedTags, l.Errors, l.FillRates} {
		v, err := marshalJSON(value)
		if err != nil {
			return err
		}
		encoded = append(encoded, v)
	}
	id, err := c.insert(ctx,
		`INSERT INTO scrape_logs (run_id, source_id, status, forced, started_at, finished_at, events_found, created, updated, skipped,
		   unmatched_tags_json, mismatched_tags_json, errors_json, fill_rates_json, structure_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, l.SourceID, string(l.Status), boolToInt(l.Forced),
		formatTime(l.StartedAt), formatTime(l.FinishedAt),
		l.EventsFound, l.Created, l.Updated, l.Skipped,
		encoded[0], encoded[1], encoded[2], encoded[3], nullableString(l.StructureHash),
	)
	if err != nil {
		return fmt.Errorf("insert scrape log: %w", err)
	}
	l.ID = id
	return nil
}

// GetScrapeLog fetches a run by its run id.
func (c conn) GetScrapeLog(ctx context.Context, runID string) (*ScrapeLog, error) {
	row := c.db.QueryRowContext(ensureContext(ctx), "SELECT "+scrapeLogColumns+" FROM scrape_logs WHERE run_id = ?", runID)
	l, err := scanScrapeLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query scrape log: %w", err)
	}
	return l, nil
}

// ScrapeLogQuery filters RecentScrapeLogs.
type ScrapeLogQuery struct {
	SourceID int64
	// BeforeID excludes runs at or after this log id (0 = no bound).
	BeforeID    int64
	SuccessOnly bool
	Limit       int
}

// RecentScrapeLogs returns runs newest first.
func (c conn) RecentScrapeLogs(ctx context.Context, q ScrapeLogQuery) ([]*ScrapeLog, error) {
	query := "SELECT " + scrapeLogColumns + " FROM scrape_logs WHERE source_id = ?"
	args := []any{q.SourceID}
	if q.BeforeID > 0 {
		query += " AND id < ?"
		args = append(args, q.BeforeID)
	}
	if q.SuccessOnly {
		query += " AND status = ?"
		args = append(args, string(RunSuccess))
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := c.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scrape logs: %w", err)
	}
	defer rows.Close()
	var logs []*ScrapeLog
	for rows.Next() {
		l, err := scanScrapeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scrape log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ConsecutiveFailures counts failed runs since the source's last success.
func (c conn) ConsecutiveFailures(ctx context.Context, sourceID int64) (int, error) {
	var count int
	err := c.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM scrape_logs
		 WHERE source_id = ? AND status = ?
		   AND id > COALESCE((SELECT MAX(id) FROM scrape_logs WHERE source_id = ? AND status = ?), 0)`,
		sourceID, string(RunFailed), sourceID, string(RunSuccess),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count consecutive failures: %w", err)
	}
	return count, nil
}
