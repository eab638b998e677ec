package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hashsync/internal/api"
	"hashsync/internal/app"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database location and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				stats, err := a.Store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.FromStats(stats))
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("hashsync", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, a.Store.Path(), colorize))
				fmt.Fprintln(out, renderStatusLine("Metrics", statusInfo, yesNo(a.Config.Metrics.Enabled), colorize))
				fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, yesNo(a.Config.Notifications.NtfyTopic != ""), colorize))
				fmt.Fprintln(out, renderStatusLine("Issue tracker", statusInfo, yesNo(a.Config.Tracker.GitHubRepo != ""), colorize))

				alertsKind := statusOK
				if stats.ActiveAlerts > 0 {
					alertsKind = statusWarn
				}
				fmt.Fprintln(out)
				rows := [][]string{
					{"Kennels", strconv.Itoa(stats.Kennels)},
					{"Aliases", strconv.Itoa(stats.Aliases)},
					{"Sources", strconv.Itoa(stats.Sources)},
					{"Events", strconv.Itoa(stats.Events)},
					{"Roster entries", strconv.Itoa(stats.RosterEntries)},
					{"Attendances", strconv.Itoa(stats.Attendances)},
				}
				fmt.Fprint(out, renderTable(out, []string{"Collection", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out, renderStatusLine("Active alerts", alertsKind, strconv.Itoa(stats.ActiveAlerts), colorize))
				return nil
			})
		},
	}
}
