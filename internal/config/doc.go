// Package config loads, normalizes, and validates hashsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, overlays an optional .env file, and honours
// environment fallbacks such as HASHSYNC_API_TOKEN and GITHUB_TOKEN. The
// Config type centralizes every knob the daemon and CLI need: storage paths,
// anomaly thresholds, CSV import defaults, and external integrations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
