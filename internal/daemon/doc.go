// Package daemon coordinates the long-running hashsync process.
//
// It wraps an assembled app.App in a single lifecycle with flock-based
// locking to prevent multiple instances, serves the HTTP API and the
// prometheus endpoint, and runs the snooze waker that returns expired
// snoozed alerts to OPEN.
//
// Keep orchestration here: domain behavior lives in the alerts, merge,
// scrape and csvimport packages while the daemon focuses on startup,
// shutdown and request plumbing.
package daemon
