package library

import (
	"path/filepath"

	"tunesmith/internal/services"
	"tunesmith/internal/settings"
	"tunesmith/internal/tagstore"
)

// Settings keys shared by the library, rules, and reconciler.
const (
	KeyOutputDir      = "output_dir"
	KeyMediaExtension = "media_extension"
	KeyFolder         = "folder"
	KeyFilename       = "filename"
	KeyTitle          = "title"
	KeyArtist         = "artist"
	KeyAlbum          = "album"
)

// Item is one song, identified by its source and remote id.
type Item struct {
	ID       string
	SourceID string
	// Path is the on-disk location of an item discovered by a scan.
	Path string

	defaults *settings.Layer
	settings *settings.Layer
}

// NewItem creates an item whose defaults inherit from base.
func NewItem(id, sourceID string, base *settings.Layer) *Item {
	defaults := base.Derive(true)
	return &Item{
		ID:       id,
		SourceID: sourceID,
		defaults: defaults,
		settings: defaults.Derive(true),
	}
}

// Defaults is the layer rules write derived values into.
func (i *Item) Defaults() *settings.Layer { return i.defaults }

// Settings holds user overrides and resolves through Defaults.
func (i *Item) Settings() *settings.Layer { return i.settings }

// OrganizationKey is the "source/item" key stored in the file's tags.
func (i *Item) OrganizationKey() string {
	return tagstore.Organization(i.SourceID, i.ID)
}

// Destination resolves the library path for the item's current settings.
func (i *Item) Destination() (string, error) {
	return destination(i.settings.Resolved())
}

func destination(values map[string]any) (string, error) {
	filename := stringValue(values, KeyFilename)
	if filename == "" {
		return "", services.Wrap(services.ErrMissingFilename, "library", "destination", "item has no filename", nil)
	}
	return filepath.Join(
		stringValue(values, KeyOutputDir),
		stringValue(values, KeyFolder),
		filename+stringValue(values, KeyMediaExtension),
	), nil
}

// Tags returns the tag values the item's file should carry.
func (i *Item) Tags() map[string]string {
	resolved := i.settings.Resolved()
	return map[string]string{
		tagstore.KeyTitle:        stringValue(resolved, KeyTitle),
		tagstore.KeyArtist:       stringValue(resolved, KeyArtist),
		tagstore.KeyAlbum:        stringValue(resolved, KeyAlbum),
		tagstore.KeyOrganization: i.OrganizationKey(),
	}
}

func stringValue(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}
