package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/csvimport"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun          bool
		threshold       float64
		nameColumn      int
		headerRow       int
		dataStartRow    int
		dataStartColumn int
	)

	cmd := &cobra.Command{
		Use:   "import <kennel> <attendance.csv>",
		Short: "Reconcile an attendance spreadsheet against a kennel's roster and events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			return ctx.withApp(func(a *app.App) error {
				opCtx := ctx.operationContext(cmd, "")
				kennel, err := findKennel(opCtx, a.Store, args[0])
				if err != nil {
					return err
				}
				opts := csvimport.Options{
					KennelID:   kennel.ID,
					Threshold:  threshold,
					RecordedBy: ctx.actor(),
					DryRun:     dryRun,
				}
				flags := cmd.Flags()
				if flags.Changed("name-column") || flags.Changed("header-row") || flags.Changed("data-start-row") || flags.Changed("data-start-column") {
					layout := csvimport.LayoutFromConfig(a.Config.Import)
					if flags.Changed("name-column") {
						layout.NameColumn = nameColumn
					}
					if flags.Changed("header-row") {
						layout.HeaderRow = headerRow
					}
					if flags.Changed("data-start-row") {
						layout.DataStartRow = dataStartRow
					}
					if flags.Changed("data-start-column") {
						layout.DataStartColumn = dataStartColumn
					}
					opts.Layout = &layout
				}

				report, err := a.Importer.Import(opCtx, string(data), opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				renderImportReport(cmd, report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Match and report without writing attendance")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Fuzzy name threshold (default from config)")
	cmd.Flags().IntVar(&nameColumn, "name-column", 0, "Zero-based column holding hash names")
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "Zero-based row holding the event headers")
	cmd.Flags().IntVar(&dataStartRow, "data-start-row", 0, "Zero-based first data row")
	cmd.Flags().IntVar(&dataStartColumn, "data-start-column", 0, "Zero-based first event column")
	return cmd
}

func renderImportReport(cmd *cobra.Command, r *csvimport.Report) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	title := "Import " + r.Kennel
	if r.DryRun {
		title += " (dry run)"
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Rows", statusInfo, strconv.Itoa(r.Rows), colorize))
	fmt.Fprintln(out, renderStatusLine("Names matched", statusOK, fmt.Sprintf("%d of %d", len(r.Names.Matched), len(r.Names.Matched)+len(r.Names.Unmatched)), colorize))
	fmt.Fprintln(out, renderStatusLine("Columns matched", statusOK, fmt.Sprintf("%d of %d", len(r.Columns.Matched), len(r.Columns.Matched)+len(r.Columns.Unmatched)), colorize))
	fmt.Fprintln(out, renderStatusLine("Records", statusInfo, strconv.Itoa(r.Records), colorize))
	if !r.DryRun {
		fmt.Fprintln(out, renderStatusLine("Inserted", statusOK, strconv.Itoa(r.Inserted), colorize))
	}
	if r.Duplicates > 0 {
		fmt.Fprintln(out, renderStatusLine("Duplicates", statusWarn, strconv.Itoa(r.Duplicates), colorize))
	}
	for _, name := range r.Names.Unmatched {
		fmt.Fprintln(out, renderStatusLine("Unmatched name", statusWarn, name, colorize))
	}
	for _, header := range r.Columns.Unmatched {
		fmt.Fprintln(out, renderStatusLine("Unmatched column", statusWarn, header, colorize))
	}
	for _, cell := range r.Unrecognized {
		fmt.Fprintln(out, renderStatusLine("Unrecognized", statusWarn, fmt.Sprintf("line %d %s/%s: %q", cell.Line, cell.Name, cell.Header, cell.Value), colorize))
	}

	fuzzy := make([][]string, 0, len(r.Names.Matched))
	for _, m := range r.Names.Matched {
		if m.Exact {
			continue
		}
		fuzzy = append(fuzzy, []string{m.Name, m.HashName, strconv.FormatFloat(m.Score, 'f', 2, 64)})
	}
	if len(fuzzy) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable(out, []string{"Sheet name", "Roster entry", "Score"}, fuzzy, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}
}
