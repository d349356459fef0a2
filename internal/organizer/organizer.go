package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tunesmith/internal/fileutil"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
	"tunesmith/internal/tagstore"
)

// Mover is implemented by tag stores that key tags by path rather than
// keeping them inside the file.
type Mover interface {
	Move(from, to string) error
}

// Organizer moves media into the library and tags it.
type Organizer struct {
	tags   tagstore.Store
	logger *slog.Logger
}

// New constructs an organizer writing tags through store.
func New(store tagstore.Store, logger *slog.Logger) *Organizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Organizer{tags: store, logger: logging.NewComponentLogger(logger, "organizer")}
}

// Place copies a cached media file to dest and tags the copy. The cache file
// is left in place so it can be filed again later.
func (o *Organizer) Place(ctx context.Context, cachePath, dest string, tags map[string]string) error {
	logger := logging.WithContext(ctx, o.logger)
	if strings.TrimSpace(dest) == "" {
		return services.Wrap(services.ErrValidation, "organizing", "place", "destination is empty", nil)
	}
	if _, err := os.Stat(cachePath); err != nil {
		return services.Wrap(services.ErrValidation, "organizing", "place", "cached media missing", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "organizing", "ensure folder", "failed to create library folder", err)
	}
	if err := fileutil.CopyFile(cachePath, dest); err != nil {
		return services.Wrap(services.ErrTransient, "organizing", "copy", fmt.Sprintf("failed to copy %s", filepath.Base(cachePath)), err)
	}
	logger.Info("placed media in library",
		logging.String("cache_file", cachePath),
		logging.String("final_file", dest))
	o.retag(logger, dest, tags)
	return nil
}

// Relocate moves src to dest when they differ and rewrites the tags either
// way. A rename across filesystems falls back to copy and remove.
func (o *Organizer) Relocate(ctx context.Context, src, dest string, tags map[string]string) (bool, error) {
	logger := logging.WithContext(ctx, o.logger)
	moved := false
	if filepath.Clean(src) != filepath.Clean(dest) {
		if err := fileutil.MoveFile(src, dest); err != nil {
			return false, services.Wrap(services.ErrTransient, "organizing", "move", fmt.Sprintf("failed to move %s", filepath.Base(src)), err)
		}
		if mover, ok := o.tags.(Mover); ok {
			if err := mover.Move(src, dest); err != nil {
				logger.Debug("tag store move skipped", logging.Error(err))
			}
		}
		pruneEmptyDir(filepath.Dir(src))
		moved = true
		logger.Info("moved media",
			logging.String("from", src),
			logging.String("final_file", dest))
	}
	o.retag(logger, dest, tags)
	return moved, nil
}

// retag writes tags. Individual key failures are logged and the other keys
// stay written.
func (o *Organizer) retag(logger *slog.Logger, path string, tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	err := o.tags.WriteTags(path, tags)
	if err == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the file is a writable ID3 media file"),
		logging.String(logging.FieldImpact, "file placed but some tags are stale"),
	}
	var writeErr *tagstore.WriteError
	if errors.As(err, &writeErr) && len(writeErr.Keys) > 0 {
		attrs = append(attrs, logging.String("keys", strings.Join(writeErr.Keys, ",")))
	}
	logging.WarnWithContext(logger, "tag write failed", "tag_write_failed", attrs...)
}

// pruneEmptyDir removes dir if a move left it empty. Errors are ignored; a
// non-empty directory simply stays.
func pruneEmptyDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
