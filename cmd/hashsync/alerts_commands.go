package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hashsync/internal/alerts"
	"hashsync/internal/api"
	"hashsync/internal/app"
	"hashsync/internal/store"
)

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	var requestID string

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect, triage and repair scrape alerts",
	}
	alertsCmd.PersistentFlags().StringVar(&requestID, "request-id", "", "Idempotency key; retrying a repair with the same key records it once")

	alertsCmd.AddCommand(newAlertsListCommand(ctx))
	alertsCmd.AddCommand(newAlertsShowCommand(ctx))
	alertsCmd.AddCommand(newAlertsAckCommand(ctx))
	alertsCmd.AddCommand(newAlertsSnoozeCommand(ctx))
	alertsCmd.AddCommand(newAlertsResolveCommand(ctx))
	alertsCmd.AddCommand(newAlertsResolveSourceCommand(ctx))
	alertsCmd.AddCommand(newAlertsRescrapeCommand(ctx, &requestID))
	alertsCmd.AddCommand(newAlertsAliasCommand(ctx, &requestID))
	alertsCmd.AddCommand(newAlertsCreateKennelCommand(ctx, &requestID))
	alertsCmd.AddCommand(newAlertsLinkCommand(ctx, &requestID))
	alertsCmd.AddCommand(newAlertsFileIssueCommand(ctx, &requestID))

	return alertsCmd
}

func newAlertsListCommand(ctx *commandContext) *cobra.Command {
	var sourceArg string
	var statuses []string
	var types []string
	var limit int
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts (active ones by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				opCtx := cmd.Context()
				filter := store.AlertFilter{Limit: limit}
				if sourceArg != "" {
					src, err := findSource(opCtx, a.Store, sourceArg)
					if err != nil {
						return err
					}
					filter.SourceID = src.ID
				}
				for _, value := range statuses {
					status, ok := store.ParseAlertStatus(value)
					if !ok {
						return fmt.Errorf("unknown alert status %q", value)
					}
					filter.Statuses = append(filter.Statuses, status)
				}
				if len(filter.Statuses) == 0 && !all {
					filter.Statuses = store.ActiveAlertStatuses
				}
				for _, value := range types {
					filter.Types = append(filter.Types, store.AlertType(strings.ToUpper(strings.TrimSpace(value))))
				}

				list, err := a.Alerts.List(opCtx, filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.AlertListResponse{Alerts: api.FromAlerts(list)})
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No alerts")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, alert := range list {
					rows = append(rows, []string{
						strconv.FormatInt(alert.ID, 10),
						strconv.FormatInt(alert.SourceID, 10),
						string(alert.Type),
						string(alert.Severity),
						string(alert.Status),
						alert.Title,
						alert.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Source", "Type", "Severity", "Status", "Title", "Created"},
					rows,
					[]columnAlignment{alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceArg, "source", "", "Only alerts for this source (id or name)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (OPEN, ACKNOWLEDGED, SNOOZED, RESOLVED)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Filter by alert type")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of alerts")
	cmd.Flags().BoolVar(&all, "all", false, "Include resolved alerts")
	return cmd
}

func newAlertsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <alert-id>",
		Short: "Show one alert with its context and repair history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "alert")
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app.App) error {
				detail, err := a.Alerts.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				dto := api.FromAlertDetail(detail)
				if ctx.jsonOutput() {
					return writeJSON(cmd, dto)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(fmt.Sprintf("Alert %d", id), colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine(string(detail.Alert.Type), severityKind(detail.Alert.Severity), detail.Alert.Title, colorize))
				fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Status:", detail.Alert.Status)
				if dto.Source != nil {
					fmt.Fprintf(out, "%s%-*s %s (%d)\n", statusIndent, statusLabelWidth, "Source:", dto.Source.Name, dto.Source.ID)
				}
				if until := dto.Alert.SnoozedUntil; until != "" {
					fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Snoozed until:", until)
				}
				if tags := detail.Alert.Context; tags != nil && len(tags.ContextTags()) > 0 {
					fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Tags:", strings.Join(tags.ContextTags(), ", "))
				}
				if len(dto.Alert.Context) > 0 {
					fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Context:", dto.Alert.Context)
				}
				if len(dto.Repairs) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(dto.Repairs))
				for _, entry := range dto.Repairs {
					rows = append(rows, []string{entry.Timestamp, entry.Action, entry.Result, entry.Actor, repairSummary(entry.Details)})
				}
				fmt.Fprint(out, renderTable(out, []string{"When", "Action", "Result", "Actor", "Details"}, rows, nil))
				return nil
			})
		},
	}
}

func repairSummary(d store.RepairDetails) string {
	parts := make([]string, 0, 4)
	if d.Tag != "" {
		parts = append(parts, "tag="+d.Tag)
	}
	if d.Kennel != "" {
		parts = append(parts, "kennel="+d.Kennel)
	}
	if d.IssueURL != "" {
		parts = append(parts, d.IssueURL)
	}
	if d.Message != "" {
		parts = append(parts, d.Message)
	}
	return strings.Join(parts, " ")
}

func newAlertsAckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an open alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.lifecycle(cmd, args[0], func(a *app.App, id int64) (*store.Alert, error) {
				return a.Alerts.Acknowledge(cmd.Context(), id, ctx.actor())
			})
		},
	}
}

func newAlertsSnoozeCommand(ctx *commandContext) *cobra.Command {
	var untilArg string
	var forArg time.Duration

	cmd := &cobra.Command{
		Use:   "snooze <alert-id>",
		Short: "Snooze an alert until a time (default from config)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var until time.Time
			switch {
			case untilArg != "":
				parsed, err := time.Parse(time.RFC3339, untilArg)
				if err != nil {
					return fmt.Errorf("--until must be RFC3339: %w", err)
				}
				until = parsed
			case forArg > 0:
				until = time.Now().Add(forArg)
			}
			return ctx.lifecycle(cmd, args[0], func(a *app.App, id int64) (*store.Alert, error) {
				return a.Alerts.Snooze(cmd.Context(), id, until, ctx.actor())
			})
		},
	}
	cmd.Flags().StringVar(&untilArg, "until", "", "Wake time (RFC3339)")
	cmd.Flags().DurationVar(&forArg, "for", 0, "Snooze duration, e.g. 6h")
	return cmd
}

func newAlertsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.lifecycle(cmd, args[0], func(a *app.App, id int64) (*store.Alert, error) {
				return a.Alerts.Resolve(cmd.Context(), id, ctx.actor())
			})
		},
	}
}

func (c *commandContext) lifecycle(cmd *cobra.Command, arg string, fn func(*app.App, int64) (*store.Alert, error)) error {
	id, err := parseID(arg, "alert")
	if err != nil {
		return err
	}
	return c.withApp(func(a *app.App) error {
		alert, err := fn(a, id)
		if err != nil {
			return err
		}
		if c.jsonOutput() {
			return writeJSON(cmd, api.AlertResponse{Alert: api.FromAlert(alert)})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Alert %d is now %s\n", alert.ID, alert.Status)
		if alert.SnoozedUntil != nil {
			fmt.Fprintf(out, "Snoozed until %s\n", alert.SnoozedUntil.Local().Format(time.RFC3339))
		}
		return nil
	})
}

func newAlertsResolveSourceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-source <source>",
		Short: "Resolve every active alert of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				src, err := findSource(cmd.Context(), a.Store, args[0])
				if err != nil {
					return err
				}
				count, err := a.Alerts.ResolveAllForSource(cmd.Context(), src.ID, ctx.actor())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CountResponse{Count: count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d alert(s) for %s\n", count, src.Name)
				return nil
			})
		},
	}
}

func newAlertsRescrapeCommand(ctx *commandContext, requestID *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rescrape <alert-id>",
		Short: "Re-run the alert's source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.repair(cmd, args[0], *requestID, store.RepairRescrape, func(a *app.App, id int64) alerts.ActionResult {
				return a.Alerts.Rescrape(ctx.operationContext(cmd, *requestID), id, force)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess unchanged candidates")
	return cmd
}

func newAlertsAliasCommand(ctx *commandContext, requestID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "alias <alert-id> <tag> <kennel>",
		Short: "Map a tag onto an existing kennel (id, short name or slug)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.repair(cmd, args[0], *requestID, store.RepairCreateAlias, func(a *app.App, id int64) alerts.ActionResult {
				opCtx := ctx.operationContext(cmd, *requestID)
				kennel, err := findKennel(opCtx, a.Store, args[2])
				if err != nil {
					return alerts.ActionResult{Error: err.Error()}
				}
				return a.Alerts.CreateAlias(opCtx, id, args[1], kennel.ID)
			})
		},
	}
}

func newAlertsCreateKennelCommand(ctx *commandContext, requestID *string) *cobra.Command {
	var in alerts.KennelInput
	var founded int

	cmd := &cobra.Command{
		Use:   "create-kennel <alert-id> <tag>",
		Short: "Create a kennel for a tag, alias it and link it to the alert's source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if founded > 0 {
				in.FoundedYear = &founded
			}
			return ctx.repair(cmd, args[0], *requestID, store.RepairCreateKennel, func(a *app.App, id int64) alerts.ActionResult {
				return a.Alerts.CreateKennel(ctx.operationContext(cmd, *requestID), id, args[1], in)
			})
		},
	}
	cmd.Flags().StringVar(&in.ShortName, "short-name", "", "Short name (default: the tag)")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "Full name")
	cmd.Flags().StringVar(&in.Region, "region", "", "Region")
	cmd.Flags().StringVar(&in.Country, "country", "", "Country")
	cmd.Flags().StringVar(&in.Website, "website", "", "Website")
	cmd.Flags().StringVar(&in.Description, "description", "", "Description")
	cmd.Flags().IntVar(&founded, "founded", 0, "Founded year")
	cmd.Flags().StringVar(&in.Alias, "alias", "", "Seed alias (default: the tag)")
	cmd.Flags().BoolVar(&in.NoAlias, "no-alias", false, "Do not create a seed alias")
	return cmd
}

func newAlertsLinkCommand(ctx *commandContext, requestID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "link <alert-id> <tag>",
		Short: "Link the kennel a tag resolves to with the alert's source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.repair(cmd, args[0], *requestID, store.RepairLinkKennel, func(a *app.App, id int64) alerts.ActionResult {
				return a.Alerts.LinkKennelToSource(ctx.operationContext(cmd, *requestID), id, args[1])
			})
		},
	}
}

func newAlertsFileIssueCommand(ctx *commandContext, requestID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "file-issue <alert-id>",
		Short: "File the alert in the configured issue tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.repair(cmd, args[0], *requestID, store.RepairExternalIssue, func(a *app.App, id int64) alerts.ActionResult {
				return a.Alerts.FileExternalIssue(ctx.operationContext(cmd, *requestID), id)
			})
		},
	}
}

// repair runs one repair action and renders its result. A failed action
// returns an error so the process exits non-zero.
func (c *commandContext) repair(cmd *cobra.Command, arg, requestID string, action store.RepairAction, fn func(*app.App, int64) alerts.ActionResult) error {
	id, err := parseID(arg, "alert")
	if err != nil {
		return err
	}
	return c.withApp(func(a *app.App) error {
		res := fn(a, id)
		if c.jsonOutput() {
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
		} else if res.Success {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine(string(action), statusOK, repairMessage(res), colorize))
			for _, w := range res.Warnings {
				fmt.Fprintln(out, renderStatusLine("warning", statusWarn, w, colorize))
			}
		}
		if !res.Success {
			return fmt.Errorf("%s failed: %s", action, res.Error)
		}
		return nil
	})
}

func repairMessage(res alerts.ActionResult) string {
	parts := make([]string, 0, 3)
	if res.KennelID != 0 {
		parts = append(parts, fmt.Sprintf("kennel %d", res.KennelID))
	}
	if res.IssueURL != "" {
		parts = append(parts, res.IssueURL)
	}
	if res.Resolved {
		parts = append(parts, "alert resolved")
	}
	return strings.Join(parts, ", ")
}
