// Package notifications pushes operator-facing messages to ntfy when alerts
// open, scrapes fail, or kennels are merged.
//
// NewService returns a no-op implementation when no topic is configured, so
// engines call it unconditionally. Delivery is best effort: callers log the
// returned error and carry on.
package notifications
