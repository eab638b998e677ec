package store

import (
	"context"
	"fmt"
)

// Stats summarizes table sizes for status output.
type Stats struct {
	Kennels       int
	Aliases       int
	Sources       int
	Events        int
	ActiveAlerts  int
	RosterEntries int
	Attendances   int
}

// Stats returns row counts across the main tables.
func (c conn) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ensureContext(ctx), `SELECT
		(SELECT COUNT(1) FROM kennels),
		(SELECT COUNT(1) FROM kennel_aliases),
		(SELECT COUNT(1) FROM sources),
		(SELECT COUNT(1) FROM events),
		(SELECT COUNT(1) FROM alerts WHERE status != ?),
		(SELECT COUNT(1) FROM roster_entries),
		(SELECT COUNT(1) FROM attendances)`, string(AlertResolved),
	).Scan(&s.Kennels, &s.Aliases, &s.Sources, &s.Events, &s.ActiveAlerts, &s.RosterEntries, &s.Attendances)
	if err != nil {
		return Stats{}, fmt.Errorf("collect stats: %w", err)
	}
	return s, nil
}
