package csvimport

import (
	"strings"

	"hashsync/internal/store"
	"hashsync/internal/textutil"
)

// NameMatch pairs a sheet name with a roster entry.
type NameMatch struct {
	Name     string  `json:"name"`
	EntryID  int64   `json:"entry_id"`
	HashName string  `json:"hash_name"`
	Score    float64 `json:"score"`
	Exact    bool    `json:"exact"`
}

// NameResult splits sheet names into matched and unmatched.
type NameResult struct {
	Matched   []NameMatch `json:"matched"`
	Unmatched []string    `json:"unmatched"`
}

// Lookup returns the match for a sheet name.
func (r NameResult) Lookup(name string) (NameMatch, bool) {
	for _, m := range r.Matched {
		if m.Name == name {
			return m, true
		}
	}
	return NameMatch{}, false
}

// MatchNames matches each name against the roster: an exact case-insensitive
// hash name first, otherwise the best fuzzy match scoring at least threshold.
func MatchNames(names []string, roster []*store.RosterEntry, threshold float64) NameResult {
	exact := make(map[string]*store.RosterEntry, len(roster))
	candidates := make([]string, len(roster))
	for i, e := range roster {
		key := textutil.FoldKey(e.HashName)
		if _, dup := exact[key]; !dup {
			exact[key] = e
		}
		candidates[i] = e.HashName
	}

	var res NameResult
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := textutil.Normalize(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if e, ok := exact[textutil.FoldKey(name)]; ok {
			res.Matched = append(res.Matched, NameMatch{Name: name, EntryID: e.ID, HashName: e.HashName, Score: 1, Exact: true})
			continue
		}
		if best, ok := textutil.BestMatch(name, candidates, threshold); ok {
			e := roster[best.Index]
			res.Matched = append(res.Matched, NameMatch{Name: name, EntryID: e.ID, HashName: e.HashName, Score: best.Score})
			continue
		}
		res.Unmatched = append(res.Unmatched, name)
	}
	return res
}

// MatchedBy says how a column header was matched.
type MatchedBy string

const (
	ByDate      MatchedBy = "date"
	ByRunNumber MatchedBy = "run_number"
)

// ColumnMatch pairs a header column with an event.
type ColumnMatch struct {
	Column  int       `json:"column"`
	Header  string    `json:"header"`
	EventID int64     `json:"event_id"`
	Date    string    `json:"date"`
	By      MatchedBy `json:"by"`
}

// ColumnResult splits header columns into matched and unmatched.
type ColumnResult struct {
	Matched   []ColumnMatch `json:"matched"`
	Unmatched []string      `json:"unmatched"`
}

// MatchColumns reads each header from dataStartColumn on as a date, then as a
// run number, and matches it against events. Blank headers are ignored.
func MatchColumns(headers []string, events []*store.Event, dataStartColumn int) ColumnResult {
	byDate := make(map[string]*store.Event, len(events))
	byRun := make(map[int]*store.Event, len(events))
	for _, ev := range events {
		if _, dup := byDate[ev.Date]; !dup {
			byDate[ev.Date] = ev
		}
		if ev.RunNumber != nil {
			if _, dup := byRun[*ev.RunNumber]; !dup {
				byRun[*ev.RunNumber] = ev
			}
		}
	}

	var res ColumnResult
	for col := max(dataStartColumn, 0); col < len(headers); col++ {
		header := strings.TrimSpace(headers[col])
		if header == "" {
			continue
		}
		if date, ok := textutil.ParseDate(header); ok {
			if ev, found := byDate[date]; found {
				res.Matched = append(res.Matched, ColumnMatch{Column: col, Header: header, EventID: ev.ID, Date: ev.Date, By: ByDate})
				continue
			}
		} else if run, ok := textutil.ParseRunNumber(header); ok {
			if ev, found := byRun[run]; found {
				res.Matched = append(res.Matched, ColumnMatch{Column: col, Header: header, EventID: ev.ID, Date: ev.Date, By: ByRunNumber})
				continue
			}
		}
		res.Unmatched = append(res.Unmatched, header)
	}
	return res
}
