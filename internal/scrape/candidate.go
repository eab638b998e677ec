package scrape

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"hashsync/internal/adapter"
	"hashsync/internal/textutil"
)

// Fields tracked for fill-rate auditing.
const (
	FieldTitle     = "title"
	FieldLocation  = "location"
	FieldStartTime = "start_time"
	FieldHares     = "hares"
	FieldRunNumber = "run_number"
)

var fillFields = []string{FieldTitle, FieldLocation, FieldStartTime, FieldHares, FieldRunNumber}

// candidate is a normalized adapter record.
type candidate struct {
	Tag       string `json:"tag"`
	Date      string `json:"date"`
	RunNumber *int   `json:"run_number,omitempty"`
	Title     string `json:"title,omitempty"`
	Location  string `json:"location,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	Hares     string `json:"hares,omitempty"`
	SourceURL string `json:"url,omitempty"`
}

func normalizeCandidate(raw adapter.RawEvent) (candidate, error) {
	date, ok := textutil.ParseDate(raw.Date)
	if !ok {
		return candidate{}, fmt.Errorf("invalid date %q", raw.Date)
	}
	c := candidate{
		Tag:       textutil.Normalize(raw.Tag),
		Date:      date,
		Title:     textutil.Normalize(raw.Title),
		Location:  textutil.Normalize(raw.Location),
		StartTime: strings.TrimSpace(raw.StartTime),
		Hares:     textutil.Normalize(raw.Hares),
		SourceURL: strings.TrimSpace(raw.SourceURL),
	}
	if raw.RunNumber != nil {
		if *raw.RunNumber <= 0 {
			return candidate{}, fmt.Errorf("invalid run number %d", *raw.RunNumber)
		}
		n := *raw.RunNumber
		c.RunNumber = &n
	}
	return c, nil
}

func (c candidate) encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

func (c candidate) fingerprint() string {
	sum := sha256.Sum256([]byte(c.encode()))
	return hex.EncodeToString(sum[:])
}

func (c candidate) filled(field string) bool {
	switch field {
	case FieldTitle:
		return c.Title != ""
	case FieldLocation:
		return c.Location != ""
	case FieldStartTime:
		return c.StartTime != ""
	case FieldHares:
		return c.Hares != ""
	case FieldRunNumber:
		return c.RunNumber != nil
	}
	return false
}

// fillRates returns the percentage of candidates with each field populated,
// or nil when there are no candidates.
func fillRates(cands []candidate) map[string]float64 {
	if len(cands) == 0 {
		return nil
	}
	rates := make(map[string]float64, len(fillFields))
	for _, field := range fillFields {
		filled := 0
		for _, c := range cands {
			if c.filled(field) {
				filled++
			}
		}
		rates[field] = float64(filled) * 100 / float64(len(cands))
	}
	return rates
}

// structureHash hashes the adapter's structural signature, or the sorted set
// of distinct tags when the adapter reports none.
func structureHash(structure []string, events []adapter.RawEvent) string {
	parts := structure
	if len(parts) == 0 {
		seen := make(map[string]struct{})
		for _, ev := range events {
			tag := textutil.FoldKey(ev.Tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			parts = append(parts, tag)
		}
		sort.Strings(parts)
	}
	if len(parts) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
