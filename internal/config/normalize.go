package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeScrape()
	c.normalizeImport()
	c.normalizeNotifications()
	c.normalizeTracker()
	c.Metrics.Namespace = strings.TrimSpace(c.Metrics.Namespace)
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaultMetricsNamespace
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("HASHSYNC_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeScrape() {
	if c.Scrape.FetchTimeoutSeconds <= 0 {
		c.Scrape.FetchTimeoutSeconds = defaultFetchTimeoutSeconds
	}
	c.Scrape.UserAgent = strings.TrimSpace(c.Scrape.UserAgent)
	if c.Scrape.UserAgent == "" {
		c.Scrape.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeImport() {
	c.Import.AttendedMarkers = normalizeMarkers(c.Import.AttendedMarkers, defaultAttendedMarkers)
	c.Import.PaidMarkers = normalizeMarkers(c.Import.PaidMarkers, defaultPaidMarkers)
	c.Import.HaredMarkers = normalizeMarkers(c.Import.HaredMarkers, defaultHaredMarkers)
}

func normalizeMarkers(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeTracker() {
	c.Tracker.GitHubRepo = strings.Trim(strings.TrimSpace(c.Tracker.GitHubRepo), "/")
	c.Tracker.GitHubToken = strings.TrimSpace(c.Tracker.GitHubToken)
	if c.Tracker.GitHubToken == "" {
		if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.Tracker.GitHubToken = strings.TrimSpace(value)
		}
	}
	c.Tracker.BaseURL = strings.TrimRight(strings.TrimSpace(c.Tracker.BaseURL), "/")
	if c.Tracker.BaseURL == "" {
		c.Tracker.BaseURL = defaultTrackerBaseURL
	}
	if c.Tracker.RequestTimeout <= 0 {
		c.Tracker.RequestTimeout = defaultTrackerRequestTimeout
	}
}
