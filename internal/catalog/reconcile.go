package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tunesmith/internal/logging"
)

// CachePath is where the raw media file for id lives in the fetch cache.
func CachePath(cacheDir, id, ext string) string {
	return filepath.Join(cacheDir, id+ext)
}

// ReconcileSummary counts the repairs made by Reconcile.
type ReconcileSummary struct {
	Dropped       int
	MarkedMissing int
	StrayDeleted  int
	Adopted       int
}

// Changed reports whether Reconcile modified the catalog.
func (s ReconcileSummary) Changed() bool {
	return s.Dropped+s.MarkedMissing+s.Adopted > 0
}

// Reconcile brings the catalog in line with the files in cacheDir.
//
// Entries whose cached file is missing are dropped when they never received a
// title, and otherwise marked not downloaded. Files with an extension other
// than ext are deleted. Cached files with no entry gain a downloaded entry so
// they are not fetched again.
func (c *Catalog) Reconcile(cacheDir, ext string) (ReconcileSummary, error) {
	var summary ReconcileSummary
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return summary, fmt.Errorf("create cache directory: %w", err)
	}
	dirEntries, err := os.ReadDir(cacheDir)
	if err != nil {
		return summary, fmt.Errorf("read cache directory: %w", err)
	}

	present := make(map[string]struct{}, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.EqualFold(filepath.Ext(name), ext) {
			path := filepath.Join(cacheDir, name)
			if err := os.Remove(path); err != nil {
				logging.WarnWithContext(c.logger, "failed to delete stray cache file", "cache_stray_delete_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "file stays in the cache directory"))
				continue
			}
			summary.StrayDeleted++
			continue
		}
		present[strings.TrimSuffix(name, filepath.Ext(name))] = struct{}{}
	}

	c.mu.Lock()
	for id, entry := range c.entries {
		if _, ok := present[id]; ok {
			continue
		}
		if strings.TrimSpace(entry.Title) == "" {
			delete(c.entries, id)
			summary.Dropped++
			continue
		}
		if entry.Downloaded() {
			entry.DownloadedAt = nil
			c.entries[id] = entry
			summary.MarkedMissing++
		}
	}
	for id := range present {
		entry, ok := c.entries[id]
		if ok && entry.Downloaded() {
			continue
		}
		if !ok {
			entry = Entry{ID: id}
		}
		ts := c.now().Unix()
		entry.DownloadedAt = &ts
		c.entries[id] = entry
		summary.Adopted++
	}
	c.mu.Unlock()

	if summary.Changed() || summary.StrayDeleted > 0 {
		c.logger.Info("reconciled catalog with cache",
			logging.Int("dropped", summary.Dropped),
			logging.Int("marked_missing", summary.MarkedMissing),
			logging.Int("stray_deleted", summary.StrayDeleted),
			logging.Int("adopted", summary.Adopted))
	}
	return summary, nil
}
