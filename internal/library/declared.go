package library

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"tunesmith/internal/fileutil"
	"tunesmith/internal/rules"
	"tunesmith/internal/services"
)

// Declared is the persisted collection file.
type Declared struct {
	Name         string           `json:"name"`
	OutputDir    string           `json:"output_dir,omitempty"`
	ItemDefaults map[string]any   `json:"item_defaults,omitempty"`
	Rules        []rules.Spec     `json:"rules,omitempty"`
	Ignored      []string         `json:"ignored,omitempty"`
	Sources      []DeclaredSource `json:"sources"`
	Items        []DeclaredItem   `json:"items"`
}

// DeclaredSource is a persisted source entry.
type DeclaredSource struct {
	ID     string       `json:"id"`
	Title  string       `json:"title,omitempty"`
	Folder string       `json:"folder,omitempty"`
	Rules  []rules.Spec `json:"rules,omitempty"`
}

// DeclaredItem is a persisted item entry. Settings holds user overrides only.
type DeclaredItem struct {
	ID       string         `json:"id"`
	SourceID string         `json:"sourceId"`
	Settings map[string]any `json:"settings,omitempty"`
}

// NewDeclared returns an empty collection file with the reference rule.
func NewDeclared(name string) *Declared {
	return &Declared{
		Name:    name,
		Rules:   []rules.Spec{rules.SpecOf(rules.ArtistTitle{})},
		Sources: []DeclaredSource{},
		Items:   []DeclaredItem{},
	}
}

// Checksum identifies the exact bytes of a collection file.
type Checksum [sha256.Size]byte

// LoadDeclared reads a collection file. Any read or parse failure is a
// configuration error that aborts work on this collection.
func LoadDeclared(path string) (*Declared, error) {
	declared, _, err := LoadDeclaredChecksum(path)
	return declared, err
}

// LoadDeclaredChecksum is LoadDeclared that also returns the checksum of the
// bytes it parsed, so a later save can tell whether the file moved on.
func LoadDeclaredChecksum(path string) (*Declared, Checksum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Checksum{}, services.Wrap(services.ErrConfiguration, "library", "load collection", path, err)
	}
	var declared Declared
	if err := json.Unmarshal(data, &declared); err != nil {
		return nil, Checksum{}, services.Wrap(services.ErrConfiguration, "library", "parse collection", path, err)
	}
	if err := declared.Validate(); err != nil {
		return nil, Checksum{}, services.Wrap(services.ErrConfiguration, "library", "validate collection", path, err)
	}
	return &declared, sha256.Sum256(data), nil
}

// FileChecksum returns the checksum of the collection file as it is now.
func FileChecksum(path string) (Checksum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checksum{}, err
	}
	return sha256.Sum256(data), nil
}

// EncodeDeclared renders the collection file exactly as SaveDeclared writes it.
func EncodeDeclared(declared *Declared) ([]byte, error) {
	data, err := json.MarshalIndent(declared, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal collection: %w", err)
	}
	return append(data, '\n'), nil
}

// SaveDeclared writes the collection file atomically.
func SaveDeclared(path string, declared *Declared) error {
	data, err := EncodeDeclared(declared)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("save collection %s: %w", path, err)
	}
	return nil
}

// Validate checks identities are present and unique.
func (d *Declared) Validate() error {
	sources := make(map[string]struct{}, len(d.Sources))
	for i, src := range d.Sources {
		if strings.TrimSpace(src.ID) == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := sources[src.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		sources[src.ID] = struct{}{}
	}
	items := make(map[string]struct{}, len(d.Items))
	for i, item := range d.Items {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("items[%d]: id is required", i)
		}
		key := item.SourceID + "/" + item.ID
		if _, dup := items[key]; dup {
			return fmt.Errorf("items[%d]: duplicate item %q", i, key)
		}
		items[key] = struct{}{}
	}
	return nil
}

// AddSource declares a source, updating title and folder when it exists.
func (d *Declared) AddSource(id, title, folder string) {
	for i := range d.Sources {
		if d.Sources[i].ID == id {
			if title != "" {
				d.Sources[i].Title = title
			}
			if folder != "" {
				d.Sources[i].Folder = folder
			}
			return
		}
	}
	d.Sources = append(d.Sources, DeclaredSource{ID: id, Title: title, Folder: folder})
}

// Ignore adds id to the ignore list. It reports false if already present.
func (d *Declared) Ignore(id string) bool {
	if slices.Contains(d.Ignored, id) {
		return false
	}
	d.Ignored = append(d.Ignored, id)
	return true
}

// SetItem records a user override for an item, declaring the item if needed.
func (d *Declared) SetItem(id, sourceID, key string, value any) {
	idx := d.findItem(id, sourceID)
	if idx < 0 {
		d.Items = append(d.Items, DeclaredItem{ID: id, SourceID: sourceID})
		idx = len(d.Items) - 1
	}
	if d.Items[idx].Settings == nil {
		d.Items[idx].Settings = make(map[string]any)
	}
	d.Items[idx].Settings[key] = value
}

// ResetItem removes a user override so the item falls back to derived values.
// It reports whether an override was removed.
func (d *Declared) ResetItem(id, sourceID, key string) bool {
	idx := d.findItem(id, sourceID)
	if idx < 0 {
		return false
	}
	if _, ok := d.Items[idx].Settings[key]; !ok {
		return false
	}
	delete(d.Items[idx].Settings, key)
	return true
}

func (d *Declared) findItem(id, sourceID string) int {
	return slices.IndexFunc(d.Items, func(item DeclaredItem) bool {
		return item.ID == id && item.SourceID == sourceID
	})
}
