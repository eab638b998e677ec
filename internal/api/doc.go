// Package api defines wire-format types and converters for the daemon HTTP
// API. It translates store models into transport-friendly DTOs that the CLI
// and other consumers can render without coupling to internal types.
//
// # Key Types
//
// Kennel, Source, Alert, RepairEntry: transport views of store records.
//
// AlertDetail: one alert with its source and append-only repair log.
//
// DaemonStatus: lock state, database location and table counts.
//
// Request types (SnoozeRequest, AliasRequest, ...) carry repair and lifecycle
// arguments posted to the daemon.
//
// # Converters
//
// FromKennel, FromSource, FromAlert, FromRepairEntry, FromStats.
//
// # Design Notes
//
// DTOs use snake_case JSON tags, matching the result structs returned by the
// alerts, merge and csvimport packages, which the daemon passes through
// unchanged. Timestamps use RFC3339 with milliseconds in UTC. Alert contexts
// keep their {"type", "data"} envelope so clients can switch on type.
package api
