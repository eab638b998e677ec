package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.BaselineRuns <= 0 {
		return errors.New("alerts.baseline_runs must be positive")
	}
	if c.Alerts.MinBaselineRuns <= 0 {
		return errors.New("alerts.min_baseline_runs must be positive")
	}
	if c.Alerts.MinBaselineRuns > c.Alerts.BaselineRuns {
		return fmt.Errorf("alerts.min_baseline_runs (%d) must not exceed alerts.baseline_runs (%d)",
			c.Alerts.MinBaselineRuns, c.Alerts.BaselineRuns)
	}
	if c.Alerts.EventCountDropPercent <= 0 || c.Alerts.EventCountDropPercent > 100 {
		return errors.New("alerts.event_count_drop_percent must be between 0 and 100")
	}
	if c.Alerts.FieldFillDropPoints <= 0 || c.Alerts.FieldFillDropPoints > 100 {
		return errors.New("alerts.field_fill_drop_points must be between 0 and 100")
	}
	if c.Alerts.ConsecutiveFailureThreshold < 2 {
		return errors.New("alerts.consecutive_failure_threshold must be at least 2")
	}
	if c.Alerts.DefaultSnoozeHours <= 0 {
		return errors.New("alerts.default_snooze_hours must be positive")
	}
	if c.Alerts.SimilarKennelScore < 0 || c.Alerts.SimilarKennelScore > 1 {
		return errors.New("alerts.similar_kennel_score must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateImport() error {
	if c.Import.FuzzyThreshold < 0 || c.Import.FuzzyThreshold > 1 {
		return errors.New("import.fuzzy_threshold must be between 0 and 1")
	}
	if c.Import.NameColumn < 0 || c.Import.HeaderRow < 0 || c.Import.DataStartRow < 0 || c.Import.DataStartColumn < 0 {
		return errors.New("import layout indexes must be >= 0")
	}
	if c.Import.DataStartRow <= c.Import.HeaderRow {
		return errors.New("import.data_start_row must come after import.header_row")
	}
	if c.Import.DataStartColumn == c.Import.NameColumn {
		return errors.New("import.data_start_column must differ from import.name_column")
	}
	return nil
}

func (c *Config) validateTracker() error {
	repo := c.Tracker.GitHubRepo
	if repo == "" {
		return nil
	}
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("tracker.github_repo must be owner/name, got %q", repo)
	}
	return nil
}
