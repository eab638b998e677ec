package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hashsync/internal/app"
	"hashsync/internal/scrape"
)

func newScrapeCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "scrape [source]",
		Short: "Scrape one source (id or name), or every enabled source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				opCtx := ctx.operationContext(cmd, "")
				opts := scrape.Options{Force: force, Actor: ctx.actor()}

				var (
					runs    []scrape.RunResult
					runErrs error
				)
				if len(args) == 1 {
					src, err := findSource(opCtx, a.Store, args[0])
					if err != nil {
						return err
					}
					res, err := a.Scraper.Scrape(opCtx, src.ID, opts)
					if err != nil {
						return err
					}
					runs = []scrape.RunResult{res}
				} else {
					runs, runErrs = a.Scraper.ScrapeAll(opCtx, opts)
				}

				if ctx.jsonOutput() {
					if err := writeJSON(cmd, runs); err != nil {
						return err
					}
					return runErrs
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No sources scraped")
					return runErrs
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Source", "Status", "Found", "Created", "Updated", "Skipped", "Unmatched", "Errors"},
					scrapeRows(runs),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight},
				))
				for _, run := range runs {
					for _, msg := range run.Errors {
						fmt.Fprintf(out, "%s: %s\n", run.SourceName, msg)
					}
				}
				if runErrs != nil {
					return errors.Join(fmt.Errorf("some sources could not be scraped"), runErrs)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess candidates whose fingerprint is unchanged")
	return cmd
}

func scrapeRows(runs []scrape.RunResult) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		status := "ok"
		if !run.Success {
			status = "failed"
		}
		rows = append(rows, []string{
			run.SourceName,
			status,
			strconv.Itoa(run.EventsFound),
			strconv.Itoa(run.Created),
			strconv.Itoa(run.Updated),
			strconv.Itoa(run.Skipped),
			strings.Join(run.UnmatchedTags, ", "),
			strconv.Itoa(len(run.Errors)),
		})
	}
	return rows
}
