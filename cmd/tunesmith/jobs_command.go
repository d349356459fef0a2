package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var collection string
	var clearFinished bool
	var clearAll bool
	var showErrors bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or clear recorded fetch jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearFinished && clearAll {
				return fmt.Errorf("specify only one of --clear or --clear-all")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				switch {
				case clearAll:
					removed, err := store.Clear(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d jobs\n", removed)
					return nil
				case clearFinished:
					removed, err := store.ClearTerminal(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d finished jobs\n", removed)
					return nil
				}

				filter := make([]queue.Status, 0, len(statuses))
				for _, s := range statuses {
					filter = append(filter, queue.Status(strings.ToLower(strings.TrimSpace(s))))
				}
				jobs, err := store.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if collection != "" {
					want, err := config.ExpandPath(collection)
					if err != nil {
						return err
					}
					if abs, err := filepath.Abs(want); err == nil {
						want = abs
					}
					kept := jobs[:0]
					for _, job := range jobs {
						if job.Collection == want {
							kept = append(kept, job)
						}
					}
					jobs = kept
				}
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}

				headers := []string{"Item", "Source", "Collection", "Status", "Updated"}
				if showErrors {
					headers = append(headers, "Error")
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					row := []string{
						job.ItemID,
						job.SourceID,
						strings.TrimSuffix(filepath.Base(job.Collection), filepath.Ext(job.Collection)),
						string(job.Status),
						humanize.Time(job.UpdatedAt),
					}
					if showErrors {
						row = append(row, truncate(job.Error, 60))
					}
					rows = append(rows, row)
				}
				fmt.Fprintln(out, renderTable(out, headers, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().StringVar(&collection, "collection", "", "Only show jobs for this collection file")
	cmd.Flags().BoolVar(&clearFinished, "clear", false, "Remove succeeded and failed jobs")
	cmd.Flags().BoolVar(&clearAll, "clear-all", false, "Remove every job")
	cmd.Flags().BoolVar(&showErrors, "errors", false, "Include the error column")
	return cmd
}
