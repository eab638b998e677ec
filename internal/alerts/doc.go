// Package alerts audits scrape runs and manages the resulting alerts.
//
// The Detector is the scrape engine's RunObserver. For every persisted run it
// evaluates the detection rules against a rolling baseline of previous
// successful runs and opens or refreshes at most one active alert per
// (source, type). Successful runs auto-resolve outstanding fetch-failure
// alerts.
//
// The Manager owns the alert lifecycle (acknowledge, snooze, resolve) and the
// five repair actions. Each repair appends exactly one entry to the alert's
// append-only repair log; when the repair mutates kennels, aliases, or links,
// the mutation and the log entry commit in one transaction. After a repair
// that can change resolution outcomes, the Manager clears the resolver cache,
// re-resolves the alert's context tags, and resolves the alert when every tag
// now matches.
package alerts
