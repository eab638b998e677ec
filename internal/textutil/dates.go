package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical event date form.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order. Two-digit years come before four-digit
// years so "1/15/26" never reads as year 0026.
var dateLayouts = []string{
	DateLayout,
	"1/2/06",
	"1/2/2006",
	"1-2-06",
	"1-2-2006",
	"2006/1/2",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
	"Monday January 2 2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate normalizes a date in any supported input format to YYYY-MM-DD.
func ParseDate(value string) (string, bool) {
	value = strings.ReplaceAll(Normalize(value), ",", "")
	if value == "" {
		return "", false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format(DateLayout), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

var runNumberPattern = regexp.MustCompile(`(?i)^(?:run\s*#?|r|#)?\s*(\d+)$`)

// ParseRunNumber reads a run number written as "2100", "#2100", "Run 2100",
// "Run #2100" or "R2100".
func ParseRunNumber(value string) (int, bool) {
	m := runNumberPattern.FindStringSubmatch(Normalize(value))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
