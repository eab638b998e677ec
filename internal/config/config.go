package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Scrape contains adapter fetch settings.
type Scrape struct {
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
}

// Alerts contains anomaly detection thresholds.
type Alerts struct {
	// BaselineRuns is how many previous successful runs form the rolling baseline.
	BaselineRuns int `toml:"baseline_runs"`
	// MinBaselineRuns is the minimum history before baseline rules fire.
	MinBaselineRuns int `toml:"min_baseline_runs"`
	// EventCountDropPercent raises EVENT_COUNT_ANOMALY when the event count
	// falls more than this percentage below the baseline average.
	EventCountDropPercent float64 `toml:"event_count_drop_percent"`
	// FieldFillDropPoints raises FIELD_FILL_DROP when a field's fill rate falls
	// more than this many percentage points below its baseline.
	FieldFillDropPoints         float64 `toml:"field_fill_drop_points"`
	ConsecutiveFailureThreshold int     `toml:"consecutive_failure_threshold"`
	DefaultSnoozeHours          int     `toml:"default_snooze_hours"`
	SimilarKennelScore          float64 `toml:"similar_kennel_score"`
}

// Import contains defaults for CSV attendance reconciliation.
type Import struct {
	FuzzyThreshold  float64  `toml:"fuzzy_threshold"`
	NameColumn      int      `toml:"name_column"`
	HeaderRow       int      `toml:"header_row"`
	DataStartRow    int      `toml:"data_start_row"`
	DataStartColumn int      `toml:"data_start_column"`
	AttendedMarkers []string `toml:"attended_markers"`
	PaidMarkers     []string `toml:"paid_markers"`
	HaredMarkers    []string `toml:"hared_markers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Alerts         bool   `toml:"alerts"`
	Merges         bool   `toml:"merges"`
}

// Tracker contains configuration for the external issue tracker export.
type Tracker struct {
	GitHubRepo     string   `toml:"github_repo"`
	GitHubToken    string   `toml:"github_token"`
	BaseURL        string   `toml:"base_url"`
	Labels         []string `toml:"labels"`
	RequestTimeout int      `toml:"request_timeout"`
}

// Metrics contains prometheus exposition settings.
type Metrics struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Config encapsulates all configuration values for hashsync.
//
// Configuration sections by subsystem:
//   - Paths: database/log directories and API bind address
//   - Logging: log format and level
//   - Scrape: adapter fetch timeout and user agent
//   - Alerts: anomaly detection baseline and thresholds
//   - Import: CSV attendance layout, fuzzy threshold and marker vocabulary
//   - Notifications: ntfy push notification settings
//   - Tracker: GitHub issue export for alerts
//   - Metrics: prometheus exposition
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Scrape        Scrape        `toml:"scrape"`
	Alerts        Alerts        `toml:"alerts"`
	Import        Import        `toml:"import"`
	Notifications Notifications `toml:"notifications"`
	Tracker       Tracker       `toml:"tracker"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hashsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv overlays KEY=value pairs from a .env file beside the config
// file. Variables already present in the environment win.
func loadDotEnv(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	envPath := filepath.Join(dir, ".env")
	if info, err := os.Stat(envPath); err != nil || info.IsDir() {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hashsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, lock, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.LockDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "hashsync.db")
}

// LockDir returns the directory holding per-source scrape locks and the daemon lock.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.DataDir, "locks")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
