package tagstore

import (
	"fmt"
	"io/fs"
	"sync"

	"tunesmith/internal/services"
)

// Memory keeps tags in process, keyed by path.
type Memory struct {
	mu   sync.Mutex
	tags map[string]Tags
	// Fail makes reads of the listed paths return an error.
	Fail map[string]error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tags: make(map[string]Tags), Fail: make(map[string]error)}
}

// Seed sets the tags for path directly.
func (m *Memory) Seed(path string, tags Tags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[path] = tags
}

// ReadTags returns the stored tags. Unknown paths read as untagged.
func (m *Memory) ReadTags(path string) (Tags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Fail[path]; ok {
		return Tags{}, services.Wrap(services.ErrScanRead, "tagstore", "read", path, err)
	}
	return m.tags[path], nil
}

// WriteTags applies the supported keys and reports unsupported ones.
func (m *Memory) WriteTags(path string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Fail[path]; ok {
		return &WriteError{Path: path, Keys: supportedKeys(values), Err: err}
	}
	tags := m.tags[path]
	for key, value := range values {
		switch key {
		case KeyTitle:
			tags.Title = optional(value)
		case KeyArtist:
			tags.Artist = optional(value)
		case KeyAlbum:
			tags.Album = optional(value)
		case KeyOrganization:
			tags.Organization = optional(value)
		}
	}
	m.tags[path] = tags
	if failed := unsupportedKeys(values); len(failed) > 0 {
		return &WriteError{Path: path, Keys: failed}
	}
	return nil
}

// Move transfers stored tags from one path to another.
func (m *Memory) Move(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags, ok := m.tags[from]
	if !ok {
		return fmt.Errorf("move tags %s: %w", from, fs.ErrNotExist)
	}
	delete(m.tags, from)
	m.tags[to] = tags
	return nil
}
