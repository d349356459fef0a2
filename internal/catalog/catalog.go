package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tunesmith/internal/fileutil"
	"tunesmith/internal/logging"
)

// Entry is the catalog record for one remote item. A nil or zero
// DownloadedAt means the raw media file is not in the cache.
type Entry struct {
	ID           string  `json:"-"`
	Title        string  `json:"title,omitempty"`
	Author       string  `json:"author,omitempty"`
	Length       float64 `json:"length,omitempty"`
	DownloadedAt *int64  `json:"downloadedAt"`
	SongTitle    string  `json:"songTitle,omitempty"`
	SongArtist   string  `json:"songArtist,omitempty"`
	SongAlbum    string  `json:"songAlbum,omitempty"`
}

// Downloaded reports whether the entry's media file is cached locally.
func (e Entry) Downloaded() bool {
	return e.DownloadedAt != nil && *e.DownloadedAt != 0
}

// DownloadedTime returns the download timestamp, or the zero time.
func (e Entry) DownloadedTime() time.Time {
	if !e.Downloaded() {
		return time.Time{}
	}
	return time.Unix(*e.DownloadedAt, 0)
}

// Metadata is the subset of a fetch service metadata object the catalog keeps.
type Metadata struct {
	ID       string  `json:"id"`
	Type     string  `json:"_type,omitempty"`
	Title    string  `json:"title,omitempty"`
	Uploader string  `json:"uploader,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	AltTitle string  `json:"alt_title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Album    string  `json:"album,omitempty"`
}

type document struct {
	Items map[string]Entry `json:"items"`
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithClock overrides the time source used for download timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// Catalog provides thread-safe access to the persisted item catalog.
type Catalog struct {
	path    string
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty catalog. An empty path keeps it in memory only.
func New(path string, logger *slog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Catalog{
		path:    path,
		logger:  logging.NewComponentLogger(logger, "catalog"),
		now:     time.Now,
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the catalog at path. A missing file yields an empty catalog; a
// malformed one is an error so downloaded state is never silently discarded.
func Load(path string, logger *slog.Logger, opts ...Option) (*Catalog, error) {
	c := New(path, logger, opts...)
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return c, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for id, entry := range doc.Items {
		if strings.TrimSpace(id) == "" {
			continue
		}
		entry.ID = id
		c.entries[id] = entry
	}
	c.logger.Debug("loaded catalog",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", path))
	return c, nil
}

// Path returns the backing file, or "" for an in-memory catalog.
func (c *Catalog) Path() string {
	return c.path
}

// Entry returns the record for id, creating an empty not-downloaded record on
// first reference.
func (c *Catalog) Entry(id string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryLocked(id)
}

func (c *Catalog) entryLocked(id string) Entry {
	entry, ok := c.entries[id]
	if !ok {
		entry = Entry{ID: id}
		c.entries[id] = entry
	}
	return entry
}

// Lookup returns the record for id without creating one.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// IsDownloaded reports whether id is marked as cached.
func (c *Catalog) IsDownloaded(id string) bool {
	entry, ok := c.Lookup(id)
	return ok && entry.Downloaded()
}

// AddFromMetadata merges remote metadata into the record for meta.ID. Empty
// remote fields never clear known values.
func (c *Catalog) AddFromMetadata(meta Metadata) (Entry, error) {
	id := strings.TrimSpace(meta.ID)
	if id == "" {
		return Entry{}, errors.New("metadata has no id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entryLocked(id)
	mergeString(&entry.Title, meta.Title)
	mergeString(&entry.Author, meta.Uploader)
	if meta.Duration > 0 {
		entry.Length = meta.Duration
	}
	mergeString(&entry.SongTitle, meta.AltTitle)
	mergeString(&entry.SongArtist, meta.Artist)
	mergeString(&entry.SongAlbum, meta.Album)
	c.entries[id] = entry
	return entry, nil
}

// AddFromListing records the flat entries of a source listing. Listing entries
// carry little more than a title, so only basic fields are merged.
func (c *Catalog) AddFromListing(entries []Metadata) {
	for _, meta := range entries {
		if _, err := c.AddFromMetadata(Metadata{
			ID:       meta.ID,
			Title:    meta.Title,
			Uploader: meta.Uploader,
			Duration: meta.Duration,
		}); err != nil {
			c.logger.Debug("skipping listing entry without id")
		}
	}
}

// SetDownloaded marks id as present in or absent from the cache.
func (c *Catalog) SetDownloaded(id string, downloaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entryLocked(id)
	if downloaded {
		ts := c.now().Unix()
		entry.DownloadedAt = &ts
	} else {
		entry.DownloadedAt = nil
	}
	c.entries[id] = entry
}

// Remove deletes the record for id, reporting whether it existed.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		return false
	}
	delete(c.entries, id)
	return true
}

// List returns every entry, newest download first, then by id.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].DownloadedTime(), entries[j].DownloadedTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Count returns the number of entries.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save rewrites the catalog file in full.
func (c *Catalog) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	doc := document{Items: make(map[string]Entry, len(c.entries))}
	for id, entry := range c.entries {
		doc.Items[id] = entry
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("persist catalog: %w", err)
	}
	return nil
}

func mergeString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
