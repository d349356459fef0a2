package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tunesmith/internal/settings"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	CacheDir   string `toml:"cache_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// Fetch contains configuration for the external downloader.
type Fetch struct {
	Binary              string   `toml:"binary"`
	FFmpegBinary        string   `toml:"ffmpeg_binary"`
	ConcurrentDownloads int      `toml:"concurrent_downloads"`
	ThrottleSeconds     int      `toml:"throttle_seconds"`
	AudioFormat         string   `toml:"audio_format"`
	AudioQuality        string   `toml:"audio_quality"`
	SourceURLTemplate   string   `toml:"source_url_template"`
	ItemURLTemplate     string   `toml:"item_url_template"`
	ExtraArgs           []string `toml:"extra_args"`
}

// Library contains configuration for the managed music library.
type Library struct {
	MediaExtension   string   `toml:"media_extension"`
	CatalogFile      string   `toml:"catalog_file"`
	DeleteStrayFiles bool     `toml:"delete_stray_files"`
	Collections      []string `toml:"collections"`
}

// Notifications contains configuration for ntfy sync notices.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// OnlyChanges suppresses notices for passes that changed nothing.
	OnlyChanges bool `toml:"only_changes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tunesmith.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Fetch         Fetch         `toml:"fetch"`
	Library       Library       `toml:"library"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tunesmith/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("tunesmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the cache, state, and log directories. The
// library directory is created on a best-effort basis so a detached music
// drive does not block catalog commands.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// CatalogPath is the media catalog file inside the state directory.
func (c *Config) CatalogPath() string {
	if filepath.IsAbs(c.Library.CatalogFile) {
		return c.Library.CatalogFile
	}
	return filepath.Join(c.Paths.StateDir, c.Library.CatalogFile)
}

// JobsPath is the fetch job ledger database.
func (c *Config) JobsPath() string {
	return filepath.Join(c.Paths.StateDir, defaultJobsFile)
}

// LockPath returns the lock file guarding syncs of one collection file. The
// name carries a digest of the absolute path so equally named collections in
// different directories do not share a lock.
func (c *Config) LockPath(collectionPath string) string {
	if abs, err := filepath.Abs(collectionPath); err == nil {
		collectionPath = abs
	}
	base := strings.TrimSuffix(filepath.Base(collectionPath), filepath.Ext(collectionPath))
	sum := sha256.Sum256([]byte(filepath.Clean(collectionPath)))
	return filepath.Join(c.Paths.StateDir, "locks", base+"-"+hex.EncodeToString(sum[:6])+".lock")
}

// CatalogLockPath returns the lock file guarding the catalog and the fetch
// cache, which every collection shares.
func (c *Config) CatalogLockPath() string {
	return filepath.Join(c.Paths.StateDir, "locks", "catalog.lock")
}

// CacheExtension is the extension of extracted audio in the cache directory.
func (c *Config) CacheExtension() string {
	return "." + c.Fetch.AudioFormat
}

// Throttle is the minimum spacing between calls to the remote service.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.Fetch.ThrottleSeconds) * time.Second
}

// SourceURL renders the listing URL for a remote source identifier.
func (c *Config) SourceURL(sourceID string) string {
	return fmt.Sprintf(c.Fetch.SourceURLTemplate, sourceID)
}

// Settings builds the root settings layer every collection derives from.
func (c *Config) Settings() *settings.Layer {
	return settings.New(map[string]any{
		"output_dir":      c.Paths.LibraryDir,
		"media_extension": c.Library.MediaExtension,
		"cache_dir":       c.Paths.CacheDir,
	})
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
