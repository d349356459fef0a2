package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"tunesmith/internal/logging"
	"tunesmith/internal/services"
)

// lockCollection takes the exclusive sync lock for one collection file.
// Another process holding it is reported as a validation error rather than
// waited on.
func (r *Runner) lockCollection(collectionPath string) (*flock.Flock, error) {
	path := r.cfg.LockPath(collectionPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire collection lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "workflow", "lock",
			fmt.Sprintf("%s is already being synced", filepath.Base(collectionPath)), nil)
	}
	return lock, nil
}

// catalogRetry is how often a waiting pass polls for the catalog lock.
const catalogRetry = 250 * time.Millisecond

// lockCatalog takes the lock on the shared catalog and fetch cache. Passes
// over different collections queue here; the wait ends early when ctx does.
func (r *Runner) lockCatalog(ctx context.Context, logger *slog.Logger) (*flock.Flock, error) {
	path := r.cfg.CatalogLockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire catalog lock: %w", err)
	}
	if locked {
		return lock, nil
	}
	logger.Info("waiting for another pass to release the catalog", logging.String("lock", path))
	locked, err = lock.TryLockContext(ctx, catalogRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire catalog lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire catalog lock: %w", ctx.Err())
	}
	return lock, nil
}

func unlock(logger *slog.Logger, lock *flock.Flock, name string) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		logger.Warn("failed to release lock", logging.String("lock", name), logging.Error(err))
	}
}
