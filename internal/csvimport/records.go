package csvimport

import (
	"strings"

	"hashsync/internal/config"
	"hashsync/internal/store"
)

// Markers is the cell vocabulary. Any recognized marker means attended;
// the paid and hared sets add those flags.
type Markers struct {
	attended map[string]struct{}
	paid     map[string]struct{}
	hared    map[string]struct{}
}

// NewMarkers builds a vocabulary. Markers compare case-insensitively.
func NewMarkers(attended, paid, hared []string) Markers {
	return Markers{attended: markerSet(attended), paid: markerSet(paid), hared: markerSet(hared)}
}

// MarkersFromConfig returns the configured vocabulary.
func MarkersFromConfig(cfg config.Import) Markers {
	return NewMarkers(cfg.AttendedMarkers, cfg.PaidMarkers, cfg.HaredMarkers)
}

func markerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// Interpret reads one cell. ok is false for blank or unrecognized cells.
func (m Markers) Interpret(cell string) (paid, hared, ok bool) {
	key := strings.ToLower(strings.TrimSpace(cell))
	if key == "" {
		return false, false, false
	}
	_, paid = m.paid[key]
	_, hared = m.hared[key]
	_, attended := m.attended[key]
	return paid, hared, attended || paid || hared
}

// CellRef points at a sheet cell the vocabulary did not recognize.
type CellRef struct {
	Line   int    `json:"line"`
	Name   string `json:"name"`
	Header string `json:"header"`
	Value  string `json:"value"`
}

// BuildResult is the output of BuildRecords.
type BuildResult struct {
	Records      []store.Attendance `json:"records"`
	Duplicates   int                `json:"duplicates"`
	Unrecognized []CellRef          `json:"unrecognized,omitempty"`
}

// BuildRecords crosses matched names with matched columns and emits one
// attendance record per attended cell. Pairs already in existing, or emitted
// earlier in the same sheet, are counted as duplicates instead.
func BuildRecords(sheet *Sheet, names NameResult, columns ColumnResult, markers Markers, existing map[store.AttendanceKey]struct{}, recordedBy string) BuildResult {
	var res BuildResult
	emitted := make(map[store.AttendanceKey]struct{})
	for _, row := range sheet.Rows {
		match, ok := names.Lookup(row.Name)
		if !ok {
			continue
		}
		for _, col := range columns.Matched {
			value := row.Cell(col.Column)
			paid, hared, attended := markers.Interpret(value)
			if !attended {
				if value != "" {
					res.Unrecognized = append(res.Unrecognized, CellRef{Line: row.Line, Name: row.Name, Header: col.Header, Value: value})
				}
				continue
			}
			key := store.AttendanceKey{RosterEntryID: match.EntryID, EventID: col.EventID}
			if _, dup := existing[key]; dup {
				res.Duplicates++
				continue
			}
			if _, dup := emitted[key]; dup {
				res.Duplicates++
				continue
			}
			emitted[key] = struct{}{}
			res.Records = append(res.Records, store.Attendance{
				EventID:       col.EventID,
				RosterEntryID: match.EntryID,
				Attended:      true,
				Paid:          paid,
				Hared:         hared,
				RecordedBy:    recordedBy,
			})
		}
	}
	return res
}
