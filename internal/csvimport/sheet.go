package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"hashsync/internal/config"
	"hashsync/internal/textutil"
)

// Layout locates the name column, header row, and data block of a sheet.
// All indexes are zero-based.
type Layout struct {
	NameColumn      int `json:"name_column"`
	HeaderRow       int `json:"header_row"`
	DataStartRow    int `json:"data_start_row"`
	DataStartColumn int `json:"data_start_column"`
}

// LayoutFromConfig returns the configured default layout.
func LayoutFromConfig(cfg config.Import) Layout {
	return Layout{
		NameColumn:      cfg.NameColumn,
		HeaderRow:       cfg.HeaderRow,
		DataStartRow:    cfg.DataStartRow,
		DataStartColumn: cfg.DataStartColumn,
	}
}

func (l Layout) validate() error {
	if l.NameColumn < 0 || l.HeaderRow < 0 || l.DataStartRow < 0 || l.DataStartColumn < 0 {
		return errors.New("layout indexes must be >= 0")
	}
	if l.DataStartRow <= l.HeaderRow {
		return errors.New("data start row must come after the header row")
	}
	if l.DataStartColumn == l.NameColumn {
		return errors.New("data start column must differ from the name column")
	}
	return nil
}

// Row is one hasher line of the sheet.
type Row struct {
	// Line is the one-based line number in the source text.
	Line  int
	Name  string
	Cells []string
}

// Cell returns the trimmed value at column, or "" past the end of a ragged row.
func (r Row) Cell(column int) string {
	if column < 0 || column >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[column])
}

// Sheet is a parsed attendance spreadsheet.
type Sheet struct {
	Layout  Layout
	Headers []string
	Rows    []Row
}

// Names lists the row names in sheet order.
func (s *Sheet) Names() []string {
	names := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		names[i] = r.Name
	}
	return names
}

// Parse reads CSV text into a Sheet. Ragged rows are allowed and rows with a
// blank name are skipped.
func Parse(text string, layout Layout) (*Sheet, error) {
	if err := layout.validate(); err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	sheet := &Sheet{Layout: layout}
	for index := 0; ; index++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sheet: %w", err)
		}
		switch {
		case index == layout.HeaderRow:
			sheet.Headers = make([]string, len(record))
			for i, h := range record {
				sheet.Headers[i] = textutil.Normalize(h)
			}
		case index >= layout.DataStartRow:
			row := Row{Cells: record}
			row.Line, _ = reader.FieldPos(0)
			row.Name = textutil.Normalize(row.Cell(layout.NameColumn))
			if row.Name == "" {
				continue
			}
			sheet.Rows = append(sheet.Rows, row)
		}
	}
	if sheet.Headers == nil {
		return nil, fmt.Errorf("parse sheet: header row %d not found", layout.HeaderRow)
	}
	return sheet, nil
}
