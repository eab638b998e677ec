// Package services defines shared utilities consumed by the reconciliation
// engines and the transports that drive them.
//
// Key responsibilities:
//   - Context helpers that stamp source IDs, operation names, actors, and
//     correlation identifiers for logging and audit trails.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (validation, not found, conflict, external) with errors.Is and
//     map them onto transport status codes.
//
// Use these helpers when wiring new operations so error handling and
// observability stay uniform across the CLI, daemon, and engines.
package services
