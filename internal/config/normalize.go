package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFetch()
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("TUNESMITH_LIBRARY_DIR"); ok && strings.TrimSpace(value) != "" {
		if strings.TrimSpace(c.Paths.LibraryDir) == "" || c.Paths.LibraryDir == defaultLibraryDir {
			c.Paths.LibraryDir = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFetch() {
	c.Fetch.Binary = strings.TrimSpace(c.Fetch.Binary)
	if c.Fetch.Binary == "" {
		c.Fetch.Binary = defaultFetchBinary
	}
	c.Fetch.FFmpegBinary = strings.TrimSpace(c.Fetch.FFmpegBinary)
	if c.Fetch.FFmpegBinary == "" {
		c.Fetch.FFmpegBinary = defaultFFmpegBinary
	}
	c.Fetch.AudioFormat = strings.ToLower(strings.TrimSpace(c.Fetch.AudioFormat))
	if c.Fetch.AudioFormat == "" {
		c.Fetch.AudioFormat = defaultAudioFormat
	}
	c.Fetch.AudioQuality = strings.TrimSpace(c.Fetch.AudioQuality)
	if c.Fetch.AudioQuality == "" {
		c.Fetch.AudioQuality = defaultAudioQuality
	}
	c.Fetch.SourceURLTemplate = strings.TrimSpace(c.Fetch.SourceURLTemplate)
	if c.Fetch.SourceURLTemplate == "" {
		c.Fetch.SourceURLTemplate = defaultSourceURLTemplate
	}
	c.Fetch.ItemURLTemplate = strings.TrimSpace(c.Fetch.ItemURLTemplate)
	if c.Fetch.ItemURLTemplate == "" {
		c.Fetch.ItemURLTemplate = defaultItemURLTemplate
	}
}

func (c *Config) normalizeLibrary() error {
	ext := strings.ToLower(strings.TrimSpace(c.Library.MediaExtension))
	if ext == "" {
		ext = "." + c.Fetch.AudioFormat
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.Library.MediaExtension = ext
	c.Library.CatalogFile = strings.TrimSpace(c.Library.CatalogFile)
	if c.Library.CatalogFile == "" {
		c.Library.CatalogFile = defaultCatalogFile
	}
	for i, path := range c.Library.Collections {
		expanded, err := expandPath(strings.TrimSpace(path))
		if err != nil {
			return fmt.Errorf("library.collections[%d]: %w", i, err)
		}
		c.Library.Collections[i] = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
