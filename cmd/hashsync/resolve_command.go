package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/resolver"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var sourceArg string

	cmd := &cobra.Command{
		Use:   "resolve <tag>...",
		Short: "Resolve source tags to canonical kennels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				opCtx := cmd.Context()
				var sourceID int64
				if sourceArg != "" {
					src, err := findSource(opCtx, a.Store, sourceArg)
					if err != nil {
						return err
					}
					sourceID = src.ID
				}
				results := make([]resolver.Result, 0, len(args))
				for _, tag := range args {
					res, err := a.Resolve(opCtx, tag, sourceID)
					if err != nil {
						return err
					}
					results = append(results, res)
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, results)
				}
				rows := make([][]string, 0, len(results))
				for _, res := range results {
					kennel := "-"
					if res.Matched {
						kennel = fmt.Sprintf("%s (%d)", res.ShortName, res.KennelID)
					}
					rows = append(rows, []string{res.Tag, yesNo(res.Matched), kennel, string(res.Step)})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out, []string{"Tag", "Matched", "Kennel", "Step"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceArg, "source", "", "Apply this source's patterns and default tag (id or name)")
	return cmd
}
