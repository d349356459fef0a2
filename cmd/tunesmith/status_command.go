package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/preflight"
	"tunesmith/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency, catalog, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cat, err := loadCatalog(ctx)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				fmt.Fprintln(out, renderSectionHeader("System", colorize))
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					fmt.Fprintln(out, renderStatusLine(result.Name, checkKind(result.Passed), result.Detail, colorize))
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Catalog", colorize))
				downloaded := 0
				for _, entry := range cat.List() {
					if entry.Downloaded() {
						downloaded++
					}
				}
				fmt.Fprintln(out, renderStatusLine("Entries", statusInfo,
					fmt.Sprintf("%d known, %d cached", cat.Count(), downloaded), colorize))

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Jobs", colorize))
				jobs, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				counts := make(map[queue.Status]int)
				for _, job := range jobs {
					counts[job.Status]++
				}
				if len(counts) == 0 {
					fmt.Fprintln(out, renderStatusLine("Ledger", statusInfo, "No jobs recorded", colorize))
				}
				statuses := make([]string, 0, len(counts))
				for status := range counts {
					statuses = append(statuses, string(status))
				}
				sort.Strings(statuses)
				for _, status := range statuses {
					fmt.Fprintln(out, renderStatusLine(titleCase(status), jobStatusKind(queue.Status(status)),
						fmt.Sprintf("%d", counts[queue.Status(status)]), colorize))
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Collections", colorize))
				if len(cfg.Library.Collections) == 0 {
					fmt.Fprintln(out, renderStatusLine("Configured", statusWarn, "library.collections is empty", colorize))
				}
				for _, path := range cfg.Library.Collections {
					fmt.Fprintln(out, collectionStatusLine(path, colorize))
				}
				return nil
			})
		},
	}
}
