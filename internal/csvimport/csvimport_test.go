package csvimport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hashsync/internal/config"
	"hashsync/internal/csvimport"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/store"
	"hashsync/internal/testsupport"
)

var defaultLayout = csvimport.Layout{NameColumn: 0, HeaderRow: 0, DataStartRow: 1, DataStartColumn: 1}

func intPtr(v int) *int { return &v }

func TestParseSkipsBlankNamesAndAllowsRaggedRows(t *testing.T) {
	text := "Hasher,1/15/26,#2100\n" +
		"Just Bob,x\n" +
		",x,x\n" +
		"  Mudflap  ,,h,extra\n"

	sheet, err := csvimport.Parse(text, defaultLayout)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hasher", "1/15/26", "#2100"}, sheet.Headers)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Just Bob", sheet.Rows[0].Name)
	assert.Equal(t, "", sheet.Rows[0].Cell(2))
	assert.Equal(t, "Mudflap", sheet.Rows[1].Name)
	assert.Equal(t, 4, sheet.Rows[1].Line)
	assert.Equal(t, "h", sheet.Rows[1].Cell(2))
}

func TestParseCustomLayout(t *testing.T) {
	text := "Attendance 2026\n" +
		"Run,Name,2026-01-15\n" +
		"1,Bob,x\n"
	layout := csvimport.Layout{NameColumn: 1, HeaderRow: 1, DataStartRow: 2, DataStartColumn: 2}

	sheet, err := csvimport.Parse(text, layout)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "Bob", sheet.Rows[0].Name)
	assert.Equal(t, "2026-01-15", sheet.Headers[2])
}

func TestParseRejectsBadLayout(t *testing.T) {
	_, err := csvimport.Parse("a,b\n", csvimport.Layout{HeaderRow: 1, DataStartRow: 1, DataStartColumn: 1})
	assert.Error(t, err)

	_, err = csvimport.Parse("", defaultLayout)
	assert.Error(t, err)
}

func TestMatchNames(t *testing.T) {
	roster := []*store.RosterEntry{
		{ID: 1, HashName: "Just Bob"},
		{ID: 2, HashName: "Mudflap"},
		{ID: 3, HashName: "Lost in Translation"},
	}
	res := csvimport.MatchNames([]string{"just bob", "Mudflapp", "Nobody Here", "", "just bob"}, roster, 0.8)

	require.Len(t, res.Matched, 2)
	assert.Equal(t, csvimport.NameMatch{Name: "just bob", EntryID: 1, HashName: "Just Bob", Score: 1, Exact: true}, res.Matched[0])
	assert.Equal(t, int64(2), res.Matched[1].EntryID)
	assert.False(t, res.Matched[1].Exact)
	assert.InDelta(t, 1-1.0/8, res.Matched[1].Score, 0.0001)
	assert.Equal(t, []string{"Nobody Here"}, res.Unmatched)
}

func TestMatchColumns(t *testing.T) {
	events := []*store.Event{
		{ID: 10, Date: "2026-01-15"},
		{ID: 11, Date: "2026-01-22", RunNumber: intPtr(2100)},
		{ID: 12, Date: "2026-01-29", RunNumber: intPtr(2101)},
	}
	headers := []string{"Name", "1/15/26", "#2100", "Run 2101", "2/30/26", "R9999", "", "Notes"}

	res := csvimport.MatchColumns(headers, events, 1)
	require.Len(t, res.Matched, 3)
	assert.Equal(t, csvimport.ColumnMatch{Column: 1, Header: "1/15/26", EventID: 10, Date: "2026-01-15", By: csvimport.ByDate}, res.Matched[0])
	assert.Equal(t, csvimport.ColumnMatch{Column: 2, Header: "#2100", EventID: 11, Date: "2026-01-22", By: csvimport.ByRunNumber}, res.Matched[1])
	assert.Equal(t, int64(12), res.Matched[2].EventID)
	assert.Equal(t, []string{"2/30/26", "R9999", "Notes"}, res.Unmatched)
}

func TestMarkersInterpret(t *testing.T) {
	markers := csvimport.MarkersFromConfig(config.Default().Import)
	tests := []struct {
		cell               string
		paid, hared, valid bool
	}{
		{cell: "x", valid: true},
		{cell: "H", hared: true, valid: true},
		{cell: "$", paid: true, valid: true},
		{cell: "hp", paid: true, hared: true, valid: true},
		{cell: " ✓ ", valid: true},
		{cell: "", valid: false},
		{cell: "maybe", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			paid, hared, ok := markers.Interpret(tt.cell)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.paid, paid)
			assert.Equal(t, tt.hared, hared)
		})
	}
}

func TestBuildRecords(t *testing.T) {
	sheet, err := csvimport.Parse("Name,1/15/26,#2100\nBob,H,?\nBobby,x,$\n", defaultLayout)
	require.NoError(t, err)
	names := csvimport.NameResult{Matched: []csvimport.NameMatch{
		{Name: "Bob", EntryID: 1},
		{Name: "Bobby", EntryID: 1},
	}}
	columns := csvimport.ColumnResult{Matched: []csvimport.ColumnMatch{
		{Column: 1, Header: "1/15/26", EventID: 10},
		{Column: 2, Header: "#2100", EventID: 11},
	}}
	markers := csvimport.NewMarkers([]string{"x", "h"}, []string{"$"}, []string{"h"})

	res := csvimport.BuildRecords(sheet, names, columns, markers, nil, "importer")
	require.Len(t, res.Records, 2)
	assert.Equal(t, store.Attendance{EventID: 10, RosterEntryID: 1, Attended: true, Hared: true, RecordedBy: "importer"}, res.Records[0])
	assert.Equal(t, store.Attendance{EventID: 11, RosterEntryID: 1, Attended: true, Paid: true, RecordedBy: "importer"}, res.Records[1])
	assert.Equal(t, 1, res.Duplicates, "second row re-marks entry 1 at event 10")
	require.Len(t, res.Unrecognized, 1)
	assert.Equal(t, "?", res.Unrecognized[0].Value)

	existing := map[store.AttendanceKey]struct{}{{RosterEntryID: 1, EventID: 10}: {}}
	res = csvimport.BuildRecords(sheet, names, columns, markers, existing, "importer")
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 2, res.Duplicates)
}

func TestImportIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	kennel := testsupport.MustCreateKennel(t, st, "RH3")
	testsupport.MustCreateEvent(t, st, kennel.ID, "2026-01-15", 2099)
	testsupport.MustCreateEvent(t, st, kennel.ID, "2026-01-22", 2100)
	for _, name := range []string{"Just Bob", "Mudflap"} {
		require.NoError(t, st.CreateRosterEntry(ctx, &store.RosterEntry{KennelID: kennel.ID, HashName: name}))
	}

	rec := metrics.New("test")
	importer := csvimport.NewImporter(cfg, st, logging.NewNop())
	importer.SetMetrics(rec)

	text := "Hasher,1/15/26,#2100,3/3/26\n" +
		"Just Bob,H,x,x\n" +
		"Mudflap,,hp,\n" +
		"Stranger,x,x,\n"

	first, err := importer.Import(ctx, text, csvimport.Options{KennelID: kennel.ID, RecordedBy: "gm"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Records)
	assert.Equal(t, 3, first.Inserted)
	assert.Equal(t, 0, first.Duplicates)
	assert.Equal(t, []string{"Stranger"}, first.Names.Unmatched)
	assert.Equal(t, []string{"3/3/26"}, first.Columns.Unmatched)

	second, err := importer.Import(ctx, text, csvimport.Options{KennelID: kennel.ID, RecordedBy: "gm"})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Records)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, first.Records, second.Duplicates)

	assert.Equal(t, 3.0, rec.CounterValue("test_attendance_import_records_total", map[string]string{"outcome": "inserted"}))
	assert.Equal(t, 3.0, rec.CounterValue("test_attendance_import_records_total", map[string]string{"outcome": "duplicate"}))
}

func TestImportDryRunWritesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	kennel := testsupport.MustCreateKennel(t, st, "RH3")
	ev := testsupport.MustCreateEvent(t, st, kennel.ID, "2026-01-15", 0)
	entry := &store.RosterEntry{KennelID: kennel.ID, HashName: "Just Bob"}
	require.NoError(t, st.CreateRosterEntry(ctx, entry))

	importer := csvimport.NewImporter(cfg, st, logging.NewNop())
	report, err := importer.Import(ctx, "Name,2026-01-15\nJust Bob,x\n", csvimport.Options{KennelID: kennel.ID, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Records)
	assert.Equal(t, 0, report.Inserted)

	pairs, err := st.AttendancePairs(ctx, []int64{ev.ID})
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
