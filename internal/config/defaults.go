package config

const (
	defaultDataDir                   = "~/.local/share/hashsync"
	defaultLogDir                    = "~/.local/share/hashsync/logs"
	defaultAPIBind                   = "127.0.0.1:7488"
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultFetchTimeoutSeconds       = 60
	defaultUserAgent                 = "hashsync/dev"
	defaultBaselineRuns              = 5
	defaultMinBaselineRuns           = 3
	defaultEventCountDropPercent     = 50
	defaultFieldFillDropPoints       = 30
	defaultConsecutiveFailures       = 3
	defaultSnoozeHours               = 24
	defaultFuzzyThreshold            = 0.8
	defaultNotifyRequestTimeout      = 10
	defaultTrackerBaseURL            = "https://api.github.com"
	defaultTrackerRequestTimeout     = 15
	defaultMetricsNamespace          = "hashsync"
	defaultImportNameColumn          = 0
	defaultImportHeaderRow           = 0
	defaultImportDataStartRow        = 1
	defaultImportDataStartColumn     = 1
	defaultSimilarKennelScoreWarning = 0.85
)

var (
	defaultAttendedMarkers = []string{"x", "✓", "y", "1", "p", "$", "h", "hp", "ph", "h$"}
	defaultPaidMarkers     = []string{"p", "$", "hp", "ph", "h$"}
	defaultHaredMarkers    = []string{"h", "hp", "ph", "h$"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Scrape: Scrape{
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
			UserAgent:           defaultUserAgent,
		},
		Alerts: Alerts{
			BaselineRuns:                defaultBaselineRuns,
			MinBaselineRuns:             defaultMinBaselineRuns,
			EventCountDropPercent:       defaultEventCountDropPercent,
			FieldFillDropPoints:         defaultFieldFillDropPoints,
			ConsecutiveFailureThreshold: defaultConsecutiveFailures,
			DefaultSnoozeHours:          defaultSnoozeHours,
			SimilarKennelScore:          defaultSimilarKennelScoreWarning,
		},
		Import: Import{
			FuzzyThreshold:  defaultFuzzyThreshold,
			NameColumn:      defaultImportNameColumn,
			HeaderRow:       defaultImportHeaderRow,
			DataStartRow:    defaultImportDataStartRow,
			DataStartColumn: defaultImportDataStartColumn,
			AttendedMarkers: append([]string(nil), defaultAttendedMarkers...),
			PaidMarkers:     append([]string(nil), defaultPaidMarkers...),
			HaredMarkers:    append([]string(nil), defaultHaredMarkers...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Alerts:         true,
			Merges:         true,
		},
		Tracker: Tracker{
			BaseURL:        defaultTrackerBaseURL,
			RequestTimeout: defaultTrackerRequestTimeout,
			Labels:         []string{"hashsync", "source-alert"},
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: defaultMetricsNamespace,
		},
	}
}
