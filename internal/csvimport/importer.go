package csvimport

import (
	"context"
	"fmt"
	"log/slog"

	"hashsync/internal/config"
	"hashsync/internal/logging"
	"hashsync/internal/metrics"
	"hashsync/internal/services"
	"hashsync/internal/store"
)

// Options control one import.
type Options struct {
	KennelID int64
	// Layout overrides the configured layout when set.
	Layout *Layout
	// Threshold overrides the configured fuzzy threshold when positive.
	Threshold  float64
	RecordedBy string
	DryRun     bool
}

// Report summarizes an import.
type Report struct {
	Kennel       string       `json:"kennel"`
	Rows         int          `json:"rows"`
	Names        NameResult   `json:"names"`
	Columns      ColumnResult `json:"columns"`
	Records      int          `json:"records"`
	Inserted     int          `json:"inserted"`
	Duplicates   int          `json:"duplicates"`
	Unrecognized []CellRef    `json:"unrecognized,omitempty"`
	DryRun       bool         `json:"dry_run"`
}

// Importer runs the reconciliation pipeline against the store.
type Importer struct {
	store   *store.Store
	cfg     config.Import
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewImporter constructs an importer.
func NewImporter(cfg *config.Config, st *store.Store, logger *slog.Logger) *Importer {
	return &Importer{store: st, cfg: cfg.Import, logger: logging.NewComponentLogger(logger, "csvimport")}
}

// SetMetrics registers the metrics recorder.
func (i *Importer) SetMetrics(recorder *metrics.Recorder) {
	i.metrics = recorder
}

// Import reconciles text against the kennel's shared roster and its events,
// then stores the new attendance records.
func (i *Importer) Import(ctx context.Context, text string, opts Options) (*Report, error) {
	kennel, err := i.store.GetKennel(ctx, opts.KennelID)
	if err != nil {
		return nil, err
	}
	if kennel == nil {
		return nil, services.Wrap(services.ErrNotFound, "csvimport", "import", fmt.Sprintf("kennel %d not found", opts.KennelID), nil)
	}
	layout := LayoutFromConfig(i.cfg)
	if opts.Layout != nil {
		layout = *opts.Layout
	}
	threshold := i.cfg.FuzzyThreshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	}
	logger := logging.WithContext(ctx, i.logger).With(logging.KennelID(kennel.ID))

	sheet, err := Parse(text, layout)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "csvimport", "parse", "", err)
	}
	roster, err := i.store.RosterForKennel(ctx, kennel.ID)
	if err != nil {
		return nil, err
	}
	events, err := i.store.EventsForKennels(ctx, []int64{kennel.ID})
	if err != nil {
		return nil, err
	}

	names := MatchNames(sheet.Names(), roster, threshold)
	columns := MatchColumns(sheet.Headers, events, layout.DataStartColumn)
	eventIDs := make([]int64, len(columns.Matched))
	for idx, col := range columns.Matched {
		eventIDs[idx] = col.EventID
	}
	existing, err := i.store.AttendancePairs(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	built := BuildRecords(sheet, names, columns, MarkersFromConfig(i.cfg), existing, opts.RecordedBy)

	report := &Report{
		Kennel:       kennel.ShortName,
		Rows:         len(sheet.Rows),
		Names:        names,
		Columns:      columns,
		Records:      len(built.Records),
		Duplicates:   built.Duplicates,
		Unrecognized: built.Unrecognized,
		DryRun:       opts.DryRun,
	}
	if !opts.DryRun && len(built.Records) > 0 {
		err := i.store.WithTx(ctx, func(tx *store.Tx) error {
			inserted, dups, err := tx.InsertAttendances(ctx, built.Records)
			report.Inserted = inserted
			report.Duplicates += dups
			return err
		})
		if err != nil {
			return nil, err
		}
		i.metrics.ImportRecords("inserted", report.Inserted)
	}
	i.metrics.ImportRecords("duplicate", report.Duplicates)

	logger.Info("attendance import finished",
		logging.Int("rows", report.Rows),
		logging.Int("names_matched", len(names.Matched)),
		logging.Int("names_unmatched", len(names.Unmatched)),
		logging.Int("columns_matched", len(columns.Matched)),
		logging.Int("columns_unmatched", len(columns.Unmatched)),
		logging.Int("inserted", report.Inserted),
		logging.Int("duplicates", report.Duplicates),
		logging.Bool("dry_run", opts.DryRun),
	)
	if len(names.Unmatched) > 0 {
		logging.WarnWithContext(logger, "sheet names not on roster", "import_unmatched_names",
			logging.Any("names", names.Unmatched),
			logging.String(logging.FieldImpact, "attendance for these rows was not imported"),
			logging.String(logging.FieldErrorHint, "add the hashers to the roster or lower import.fuzzy_threshold"),
		)
	}
	return report, nil
}
