package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/merge"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "merge <source-kennel> <target-kennel>",
		Short: "Fold a duplicate kennel into another (id, short name or slug)",
		Long: `Moves every record owned by the source kennel onto the target and deletes
the source. Use --preview to see row counts and blocking date conflicts first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				opCtx := ctx.operationContext(cmd, "")
				src, err := findKennel(opCtx, a.Store, args[0])
				if err != nil {
					return err
				}
				tgt, err := findKennel(opCtx, a.Store, args[1])
				if err != nil {
					return err
				}
				res := a.Merger.Merge(opCtx, src.ID, tgt.ID, preview)
				if ctx.jsonOutput() {
					if err := writeJSON(cmd, res); err != nil {
						return err
					}
					return res.Err()
				}
				out := cmd.OutOrStdout()
				renderMergePreview(cmd, res.Preview)
				if !res.Success {
					return res.Err()
				}
				if preview {
					return nil
				}
				rows := make([][]string, 0, len(res.Collections))
				for _, c := range res.Collections {
					rows = append(rows, []string{
						c.Table,
						string(c.Policy),
						strconv.FormatInt(c.Moved, 10),
						strconv.FormatInt(c.Deduped, 10),
						strconv.FormatInt(c.Deleted, 10),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Collection", "Policy", "Moved", "Deduped", "Deleted"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				fmt.Fprintf(out, "Merged %s into %s\n", src.ShortName, tgt.ShortName)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show what would move without changing anything")
	return cmd
}

func renderMergePreview(cmd *cobra.Command, p *merge.Preview) {
	if p == nil {
		return
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader(fmt.Sprintf("%s -> %s", p.Source.ShortName, p.Target.ShortName), colorize) {
		fmt.Fprintln(out, line)
	}
	rows := make([][]string, 0, len(p.Collections))
	for _, c := range p.Collections {
		rows = append(rows, []string{c.Table, string(c.Policy), strconv.Itoa(c.Source), strconv.Itoa(c.Target)})
	}
	fmt.Fprint(out, renderTable(out,
		[]string{"Collection", "Policy", p.Source.ShortName, p.Target.ShortName},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
	for _, c := range p.Conflicts {
		fmt.Fprintln(out, renderStatusLine("conflict", statusError, fmt.Sprintf("both kennels have an event on %s", c.Date), colorize))
	}
}
