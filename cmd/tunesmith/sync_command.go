package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/workflow"
)

type syncFlags struct {
	workers    int
	throttle   int
	noProgress bool
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "Concurrent downloads (default fetch.concurrent_downloads)")
	cmd.Flags().IntVar(&f.throttle, "throttle", -1, "Seconds between remote calls (default fetch.throttle_seconds)")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable the download progress display")
}

func (f *syncFlags) apply(cfg *config.Config) {
	if f.throttle >= 0 {
		cfg.Fetch.ThrottleSeconds = f.throttle
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "sync [collection...]",
		Short: "Fetch new items and reorganize the library for each collection",
		Long: "Lists every source of each collection, downloads items that are not cached,\n" +
			"files them into the library, and moves or retags files whose settings changed.\n" +
			"With no arguments the collections in library.collections are synced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			paths, err := collectionArgs(cfg, args)
			if err != nil {
				return err
			}
			return ctx.withRunner(func(cfg *config.Config, runner *workflow.Runner) error {
				if err := runner.Preflight(cmd.Context()); err != nil {
					return err
				}
				return syncEach(cmd, paths, func(c context.Context, path string, opts workflow.SyncOptions) (workflow.Result, error) {
					return runner.Sync(c, path, opts)
				}, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   "retry <collection> [item-id...]",
		Short: "Fetch items whose last download failed",
		Long: "Resubmits the named items, or every item whose latest recorded fetch for\n" +
			"this collection failed. Sources are not listed again.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]
			return ctx.withRunner(func(cfg *config.Config, runner *workflow.Runner) error {
				if err := runner.Preflight(cmd.Context()); err != nil {
					return err
				}
				return syncEach(cmd, []string{path}, func(c context.Context, path string, opts workflow.SyncOptions) (workflow.Result, error) {
					return runner.Retry(c, path, ids, opts)
				}, flags)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

type passFunc func(context.Context, string, workflow.SyncOptions) (workflow.Result, error)

// syncEach runs pass over every collection, continuing past failures, and
// returns an error naming the collections that failed.
func syncEach(cmd *cobra.Command, paths []string, pass passFunc, flags syncFlags) error {
	out := cmd.OutOrStdout()
	var failed []error
	for _, path := range paths {
		if err := cmd.Context().Err(); err != nil {
			return err
		}
		progress := newProgressDisplay(cmd.ErrOrStderr(), !flags.noProgress)
		res, err := pass(cmd.Context(), path, workflow.SyncOptions{
			Workers:  flags.workers,
			Progress: progress.Func(),
		})
		progress.finish()
		if res.Collection != "" {
			printResult(out, res)
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		if res.Report.HasFailures() {
			failed = append(failed, fmt.Errorf("%s: %d item(s) failed", filepath.Base(path), len(res.Report.FailedIDs())))
		}
	}
	return errors.Join(failed...)
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "plan <collection>",
		Short: "Show what a sync would change without touching any file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(func(cfg *config.Config, runner *workflow.Runner) error {
				plan, err := runner.Plan(cmd.Context(), path)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, planView(plan))
				}
				printPlan(cmd, plan)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the plan as JSON")
	return cmd
}
