package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/workflow"
)

type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// settledStamp is the stamp the watcher treats as already synced. Only a
// save by the pass itself moves it; an edit made while the pass ran keeps the
// old stamp so the edit triggers another pass.
func settledStamp(path string, before fileStamp, saved bool) fileStamp {
	if saved {
		return stampOf(path)
	}
	return before
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var flags syncFlags
	var every time.Duration
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Sync a collection whenever its file changes",
		Long: "Runs a sync at start and again each time the collection file is edited.\n" +
			"With --every the collection is also synced on a fixed interval so new\n" +
			"playlist entries are picked up without an edit.",
		Args: cobra.ExactArgs(1),
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
			if path, err = filepath.Abs(path); err != nil {
				return err
			}
			return ctx.withRunner(func(cfg *config.Config, runner *workflow.Runner) error {
				if err := runner.Preflight(cmd.Context()); err != nil {
					return err
				}
				return watchCollection(cmd, ctx.loggerFor(cfg), runner, path, flags, every, debounce)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&every, "every", 0, "Also sync on this interval (0 disables)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period after an edit before syncing")
	return cmd
}

func watchCollection(cmd *cobra.Command, logger *slog.Logger, runner *workflow.Runner, path string, flags syncFlags, every, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors and our own saves replace the file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	var last fileStamp
	runOnce := func(reason string) {
		logger.Info("syncing collection", logging.String("reason", reason), logging.String("path", path))
		before := stampOf(path)
		var saved bool
		pass := func(ctx context.Context, p string, opts workflow.SyncOptions) (workflow.Result, error) {
			res, err := runner.Sync(ctx, p, opts)
			saved = res.CollectionSaved
			return res, err
		}
		if err := syncEach(cmd, []string{path}, pass, flags); err != nil {
			logger.Warn("sync finished with errors", logging.Error(err))
		}
		last = settledStamp(path, before, saved)
	}
	runOnce("start")

	var tick <-chan time.Time
	if every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}
	var settle *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.NewTimer(debounce)
			fire = settle.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", logging.Error(err))
		case <-fire:
			fire = nil
			if stampOf(path) == last {
				continue
			}
			runOnce("collection edited")
		case <-tick:
			runOnce("interval")
		}
	}
}
