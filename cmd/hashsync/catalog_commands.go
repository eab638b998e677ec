package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hashsync/internal/api"
	"hashsync/internal/app"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured sources",
	}

	var enabledOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sources with their linked kennels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				sources, err := api.NewCatalogService(a.Store).Sources(cmd.Context(), enabledOnly)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.SourceListResponse{Sources: sources})
				}
				out := cmd.OutOrStdout()
				if len(sources) == 0 {
					fmt.Fprintln(out, "No sources")
					return nil
				}
				rows := make([][]string, 0, len(sources))
				for _, s := range sources {
					rows = append(rows, []string{
						strconv.FormatInt(s.ID, 10),
						s.Name,
						s.Type,
						strconv.Itoa(s.TrustLevel),
						yesNo(s.Enabled),
						joinIDs(s.KennelIDs),
						s.LastScrapeAt,
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Name", "Type", "Trust", "Enabled", "Kennels", "Last scrape"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled sources")
	sourcesCmd.AddCommand(listCmd)
	return sourcesCmd
}

func newKennelsCommand(ctx *commandContext) *cobra.Command {
	kennelsCmd := &cobra.Command{
		Use:   "kennels",
		Short: "Inspect the kennel catalog",
	}
	kennelsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List kennels with their aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				kennels, err := api.NewCatalogService(a.Store).Kennels(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.KennelListResponse{Kennels: kennels})
				}
				out := cmd.OutOrStdout()
				if len(kennels) == 0 {
					fmt.Fprintln(out, "No kennels")
					return nil
				}
				rows := make([][]string, 0, len(kennels))
				for _, k := range kennels {
					rows = append(rows, []string{
						strconv.FormatInt(k.ID, 10),
						k.ShortName,
						k.FullName,
						k.Region,
						strings.Join(k.Aliases, ", "),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Short name", "Full name", "Region", "Aliases"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	})
	return kennelsCmd
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
