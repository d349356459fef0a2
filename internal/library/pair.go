package library

import (
	"path/filepath"
	"strings"

	"tunesmith/internal/textutil"
)

// Match links an expected item to the file that carries its organization key.
type Match struct {
	Expected *Item
	Actual   *Item
}

// Pairing is the diff between expected and actual items.
type Pairing struct {
	Matched []Match
	// Missing are expected items with no file in the library.
	Missing []*Item
	// Orphans are tagged files whose identity is not declared.
	Orphans []*Item
	// Untracked are media files without an organization tag.
	Untracked []string
}

// Pair matches expected and actual items by organization key.
func (c *Collection) Pair() Pairing {
	var p Pairing
	actualByKey := make(map[string]*Item)
	for _, item := range c.Actual() {
		key := item.OrganizationKey()
		if _, dup := actualByKey[key]; dup {
			c.logger.Warn("duplicate organization key in library", "key", key, "path", item.Path, "kept", actualByKey[key].Path)
			continue
		}
		actualByKey[key] = item
	}
	for _, item := range c.Expected() {
		key := item.OrganizationKey()
		if actual, ok := actualByKey[key]; ok {
			p.Matched = append(p.Matched, Match{Expected: item, Actual: actual})
			delete(actualByKey, key)
			continue
		}
		p.Missing = append(p.Missing, item)
	}
	for _, item := range c.Actual() {
		if actualByKey[item.OrganizationKey()] == item {
			p.Orphans = append(p.Orphans, item)
		}
	}
	p.Untracked = c.Untracked()
	return p
}

// NeedsUpdate reports whether the matched file's location or tags differ
// from what the expected item resolves to.
func (m Match) NeedsUpdate() bool {
	dest, err := m.Expected.Destination()
	if err != nil {
		return false
	}
	if dest != m.Actual.Path {
		return true
	}
	want := m.Expected.Tags()
	have := m.Actual.Tags()
	for _, key := range []string{KeyTitle, KeyArtist, KeyAlbum} {
		if want[key] != have[key] {
			return true
		}
	}
	return false
}

// Suggestion pairs an untracked file with the missing item it most resembles.
type Suggestion struct {
	Path  string
	Item  *Item
	Score float64
}

// Suggest proposes missing items for untracked files by comparing file names
// with the items' derived filenames.
func (p Pairing) Suggest(threshold float64) []Suggestion {
	if len(p.Missing) == 0 || len(p.Untracked) == 0 {
		return nil
	}
	names := make([]string, len(p.Missing))
	for i, item := range p.Missing {
		names[i] = item.Settings().String(KeyFilename)
	}
	var out []Suggestion
	for _, path := range p.Untracked {
		idx, score := textutil.BestMatch(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), names, threshold)
		if idx < 0 {
			continue
		}
		out = append(out, Suggestion{Path: path, Item: p.Missing[idx], Score: score})
	}
	return out
}

// QueueUpdates records each matched file's path on its expected item and
// queues a move/retag for matches that need one. Items for which skip
// returns true are left alone.
func (c *Collection) QueueUpdates(p Pairing, skip func(*Item) bool) int {
	queued := 0
	for _, m := range p.Matched {
		m.Expected.Path = m.Actual.Path
		if skip != nil && skip(m.Expected) {
			continue
		}
		if m.NeedsUpdate() {
			c.changes.Append(m.Actual.Path, m.Expected)
			queued++
		}
	}
	return queued
}
