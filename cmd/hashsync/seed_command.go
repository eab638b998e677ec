package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/seed"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Load kennels, aliases and sources from a YAML catalog",
		Long: `Applies a YAML catalog in one transaction. Existing kennels and aliases are
left alone; sources are updated when their settings differ. Running the same
file twice changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app.App) error {
				report, err := seed.Apply(ctx.operationContext(cmd, ""), a.Store, doc, a.Logger)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Kennels created: %d\nAliases created: %d\nSources created: %d\nSources updated: %d\nLinks created: %d\n",
					report.KennelsCreated, report.AliasesCreated, report.SourcesCreated, report.SourcesUpdated, report.LinksCreated)
				return nil
			})
		},
	}
}
