package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tunesmith/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var list bool
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs [run-id|collection]",
		Short: "Show the log of a sync or retry pass",
		Long: "Print the tail of a pass's run log. With no argument the newest run is shown;\n" +
			"otherwise the newest run whose id starts with, or whose collection matches, the argument.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runs, err := logs.ListRuns(filepath.Join(cfg.Paths.LogDir, "runs"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				if len(runs) == 0 {
					fmt.Fprintln(out, "No run logs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{run.RunID, run.Collection, humanize.Time(run.Started), filepath.Base(run.Path)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Run", "Collection", "Started", "File"}, rows, nil))
				return nil
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			run, ok := logs.FindRun(runs, query)
			if !ok {
				if query == "" {
					return fmt.Errorf("no run logs in %s", filepath.Join(cfg.Paths.LogDir, "runs"))
				}
				return fmt.Errorf("no run log matches %q", query)
			}

			tail, offset, err := logs.Last(run.Path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), run.Path, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List run logs instead of printing one")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	return cmd
}
