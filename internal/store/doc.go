// Package store persists hashsync's canonical records in SQLite.
//
// It owns the schema (kennels, aliases, sources and their kennel links,
// events, raw scrape fingerprints, scrape logs, alerts with their append-only
// repair log, memberships, rosters, and attendance) and exposes natural-key
// lookups plus create-or-update helpers used by the scrape, alert, merge, and
// import engines.
//
// Every query helper is available both on Store (autocommit) and on Tx, so
// engines that need all-or-nothing behaviour run the same calls inside
// WithTx. SQLITE_BUSY is retried with a short backoff. Single-row lookups
// return (nil, nil) when nothing matches; unique-constraint violations are
// reported as ErrDuplicate.
package store
