package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.LibraryDir == "" {
		return errors.New("paths.library_dir must be set")
	}
	if c.Paths.CacheDir == c.Paths.LibraryDir {
		return errors.New("paths.cache_dir must differ from paths.library_dir")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.ConcurrentDownloads <= 0 {
		return errors.New("fetch.concurrent_downloads must be positive")
	}
	if c.Fetch.ThrottleSeconds < 0 {
		return errors.New("fetch.throttle_seconds must be zero or positive")
	}
	if strings.Count(c.Fetch.SourceURLTemplate, "%s") != 1 {
		return fmt.Errorf("fetch.source_url_template must contain exactly one %%s, got %q", c.Fetch.SourceURLTemplate)
	}
	if strings.Count(c.Fetch.ItemURLTemplate, "%s") != 1 {
		return fmt.Errorf("fetch.item_url_template must contain exactly one %%s, got %q", c.Fetch.ItemURLTemplate)
	}
	for _, arg := range c.Fetch.ExtraArgs {
		if arg == "--" {
			return errors.New("fetch.extra_args must not contain the -- separator")
		}
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if len(c.Library.MediaExtension) < 2 {
		return fmt.Errorf("library.media_extension %q is invalid", c.Library.MediaExtension)
	}
	if strings.ContainsAny(c.Library.MediaExtension, `/\`) {
		return fmt.Errorf("library.media_extension %q must not contain path separators", c.Library.MediaExtension)
	}
	if !strings.EqualFold(c.Library.MediaExtension, c.CacheExtension()) {
		return fmt.Errorf("library.media_extension %q does not match fetch.audio_format %q", c.Library.MediaExtension, c.Fetch.AudioFormat)
	}
	return nil
}
