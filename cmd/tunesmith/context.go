package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/queue"
	"tunesmith/internal/workflow"
)

type commandContext struct {
	configFlag *string
	logLevel   *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, logLevel *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevel)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger. It falls back to a console logger on
// stderr when the configured outputs cannot be opened.
func (c *commandContext) loggerFor(cfg *config.Config) *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger, _ = logging.NewFromConfig(nil)
			logger.Warn("log file unavailable; logging to stderr only", logging.Error(err))
		}
		c.logger = logger
	})
	return c.logger
}

// withStore opens the job ledger for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// withRunner builds a runner backed by the job ledger for the duration of fn.
func (c *commandContext) withRunner(fn func(*config.Config, *workflow.Runner) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		runner, err := workflow.New(cfg, c.loggerFor(cfg), workflow.WithStore(store))
		if err != nil {
			return err
		}
		return fn(cfg, runner)
	})
}

// collectionArgs returns the named collection files, or the configured ones
// when none are named.
func collectionArgs(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		out := make([]string, 0, len(args))
		for _, arg := range args {
			path, err := config.ExpandPath(arg)
			if err != nil {
				return nil, err
			}
			out = append(out, path)
		}
		return out, nil
	}
	if len(cfg.Library.Collections) == 0 {
		return nil, errors.New("no collection given and library.collections is empty")
	}
	return cfg.Library.Collections, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
