package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/logs"
)

// RunLog manages the per-pass log files under <log_dir>/runs.
type RunLog struct {
	baseDir string
	level   string
	now     func() time.Time
}

// NewRunLog returns a RunLog for cfg. Without a log directory it is disabled.
func NewRunLog(cfg *config.Config) *RunLog {
	r := &RunLog{level: "info", now: time.Now}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		r.baseDir = filepath.Join(cfg.Paths.LogDir, "runs")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.Level) != "" {
		r.level = cfg.Logging.Level
	}
	return r
}

// Open creates the log file for one pass and returns a JSON handler writing
// to it. A disabled RunLog returns a nil handler and an empty path.
func (r *RunLog) Open(collection, runID string) (slog.Handler, string, error) {
	if r == nil || r.baseDir == "" {
		return nil, "", nil
	}
	if err := os.MkdirAll(r.baseDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("ensure run log directory: %w", err)
	}
	path := filepath.Join(r.baseDir, logs.RunFileName(r.now(), collection, runID))
	logger, err := logging.New(logging.Options{
		Level:       r.level,
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		return nil, "", err
	}
	return logger.Handler(), path, nil
}
