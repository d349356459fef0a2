package library

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tunesmith/internal/logging"
)

// Scan rebuilds the actual item list from the output directory. Files in the
// root and in each immediate subdirectory are considered; anything deeper is
// ignored. A file whose tags cannot be read is logged and skipped.
func (c *Collection) Scan() error {
	root := c.OutputDir()
	c.mu.Lock()
	c.actual, c.untracked, c.scanFails = nil, nil, nil
	c.mu.Unlock()
	if root == "" {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			c.consider(filepath.Join(root, entry.Name()), "")
			continue
		}
		folder := entry.Name()
		dir := filepath.Join(root, folder)
		children, err := os.ReadDir(dir)
		if err != nil {
			logging.WarnWithContext(c.logger, "failed to read library folder", "scan_folder_unreadable",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "files in this folder are not tracked this run"))
			continue
		}
		for _, child := range children {
			if child.IsDir() {
				c.logger.Debug("ignoring nested directory", logging.String("path", filepath.Join(dir, child.Name())))
				continue
			}
			c.consider(filepath.Join(dir, child.Name()), folder)
		}
	}

	c.logger.Debug("scanned library",
		logging.String("root", root),
		logging.Int("actual", len(c.Actual())),
		logging.Int("untracked", len(c.Untracked())))
	return nil
}

func (c *Collection) consider(path, folder string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	ext := filepath.Ext(name)
	if want := c.MediaExtension(); want != "" && !strings.EqualFold(ext, want) {
		c.removeStray(path)
		return
	}

	tags, err := c.tags.ReadTags(path)
	if err != nil {
		logging.WarnWithContext(c.logger, "failed to read tags", "scan_read_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-tag or remove the file"),
			logging.String(logging.FieldImpact, "file skipped for this sync"))
		c.mu.Lock()
		c.scanFails = append(c.scanFails, path)
		c.mu.Unlock()
		return
	}

	sourceID, itemID, ok := tags.OrganizationKey()
	if !ok {
		c.mu.Lock()
		c.untracked = append(c.untracked, path)
		c.mu.Unlock()
		return
	}

	item := c.NewItem(itemID, sourceID)
	item.Path = path
	observed := map[string]any{
		KeyFolder:   folder,
		KeyFilename: strings.TrimSuffix(name, ext),
	}
	for key, value := range map[string]*string{KeyTitle: tags.Title, KeyArtist: tags.Artist, KeyAlbum: tags.Album} {
		if value != nil {
			observed[key] = *value
		}
	}
	item.Settings().SetAll(observed)

	c.mu.Lock()
	c.actual = append(c.actual, item)
	c.mu.Unlock()
}

func (c *Collection) removeStray(path string) {
	if !c.stray {
		c.logger.Debug("leaving non-media file in place", logging.String("path", path))
		return
	}
	if err := os.Remove(path); err != nil {
		logging.WarnWithContext(c.logger, "failed to delete stray file", "stray_delete_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stray file stays in the library"))
		return
	}
	c.logger.Info("deleted stray file", logging.String("path", path))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
