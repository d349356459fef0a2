package library

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"slices"
	"sync"

	"tunesmith/internal/catalog"
	"tunesmith/internal/logging"
	"tunesmith/internal/rules"
	"tunesmith/internal/settings"
	"tunesmith/internal/tagstore"
)

// Options wires a collection's collaborators.
type Options struct {
	Root        *settings.Layer
	Registry    *rules.Registry
	Tags        tagstore.Store
	Logger      *slog.Logger
	DeleteStray bool
}

// Collection is the unit bound to one collection file.
type Collection struct {
	Name string
	Path string

	settings *settings.Layer
	template *settings.Layer
	registry *rules.Registry
	tags     tagstore.Store
	logger   *slog.Logger
	stray    bool
	outDecl  string

	Rules   []rules.Rule
	sources map[string]*Source
	order   []string
	ignored map[string]struct{}

	mu        sync.Mutex
	expected  []*Item
	index     map[string]*Item
	actual    []*Item
	untracked []string
	scanFails []string

	changes ChangeSet
}

// New returns an empty collection bound to path.
func New(path string, opts Options) *Collection {
	root := opts.Root
	if root == nil {
		root = settings.New(nil)
	}
	registry := opts.Registry
	if registry == nil {
		registry = rules.DefaultRegistry()
	}
	tags := opts.Tags
	if tags == nil {
		tags = tagstore.NewID3Store()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	layer := root.Derive(true)
	return &Collection{
		Path:     path,
		settings: layer,
		template: layer.Derive(true),
		registry: registry,
		tags:     tags,
		logger:   logging.NewComponentLogger(logger, "library").With(logging.String(logging.FieldCollection, filepath.Base(path))),
		stray:    opts.DeleteStray,
		sources:  make(map[string]*Source),
		ignored:  make(map[string]struct{}),
		index:    make(map[string]*Item),
	}
}

// Settings is the collection-level layer.
func (c *Collection) Settings() *settings.Layer { return c.settings }

// Template is the item-settings template every source derives from.
func (c *Collection) Template() *settings.Layer { return c.template }

// Changes returns the pending change set.
func (c *Collection) Changes() *ChangeSet { return &c.changes }

// TagStore returns the tag store the collection scans with.
func (c *Collection) TagStore() tagstore.Store { return c.tags }

// Initialize builds sources and expected items from declared and scans the
// output directory for the items that actually exist.
func (c *Collection) Initialize(declared *Declared) error {
	c.Name = declared.Name
	if declared.OutputDir != "" {
		c.outDecl = declared.OutputDir
		dir := declared.OutputDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(c.Path), dir)
		}
		c.settings.Set(KeyOutputDir, filepath.Clean(dir))
	}
	c.template.SetAll(declared.ItemDefaults)

	list, err := c.registry.BuildAll(declared.Rules)
	if err != nil {
		return err
	}
	c.Rules = list

	for _, id := range declared.Ignored {
		c.ignored[id] = struct{}{}
	}
	for _, ds := range declared.Sources {
		srcRules, err := c.registry.BuildAll(ds.Rules)
		if err != nil {
			return err
		}
		c.sources[ds.ID] = newSource(ds.ID, ds.Title, ds.Folder, c.template, srcRules)
		c.order = append(c.order, ds.ID)
	}
	for _, di := range declared.Items {
		item := c.NewItem(di.ID, di.SourceID)
		item.Settings().SetAll(di.Settings)
		c.AddExpected(item)
	}
	return c.Scan()
}

// NewItem creates an item seeded from its source, or from the template when
// the source is not declared.
func (c *Collection) NewItem(id, sourceID string) *Item {
	return NewItem(id, sourceID, c.baseFor(sourceID))
}

func (c *Collection) baseFor(sourceID string) *settings.Layer {
	if src, ok := c.sources[sourceID]; ok {
		return src.Settings()
	}
	return c.template
}

// Source returns the declared source with id.
func (c *Collection) Source(id string) (*Source, bool) {
	src, ok := c.sources[id]
	return src, ok
}

// Sources returns the declared sources in file order.
func (c *Collection) Sources() []*Source {
	out := make([]*Source, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sources[id])
	}
	return out
}

// IsIgnored reports whether id must never be fetched.
func (c *Collection) IsIgnored(id string) bool {
	_, ok := c.ignored[id]
	return ok
}

// OutputDir is the resolved library root for this collection.
func (c *Collection) OutputDir() string { return c.settings.String(KeyOutputDir) }

// MediaExtension is the extension of managed media files.
func (c *Collection) MediaExtension() string { return c.settings.String(KeyMediaExtension) }

// AddExpected records item as declared. A second item with the same
// organization key replaces nothing and is ignored.
func (c *Collection) AddExpected(item *Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := item.OrganizationKey()
	if _, exists := c.index[key]; exists {
		return false
	}
	c.expected = append(c.expected, item)
	c.index[key] = item
	return true
}

// SongExists looks up an expected item by identity.
func (c *Collection) SongExists(itemID, sourceID string) (*Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.index[tagstore.Organization(sourceID, itemID)]
	return item, ok
}

// Expected returns a copy of the expected item list.
func (c *Collection) Expected() []*Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.expected)
}

// Actual returns a copy of the items found by the last scan.
func (c *Collection) Actual() []*Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.actual)
}

// Untracked returns media files found without an organization tag.
func (c *Collection) Untracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.untracked)
}

// ScanFailures returns files whose tags could not be read in the last scan.
func (c *Collection) ScanFailures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.scanFails)
}

// RunRules applies the collection's and the item's source rules to item.
//
// On success, if addToChangeSet is set and the resolved settings changed, the
// item is queued using the path it had before the rules ran, so a rename is
// applied as a move rather than a fresh fetch. On failure the item's derived
// settings are restored and nothing is queued.
func (c *Collection) RunRules(item *Item, entry catalog.Entry, addToChangeSet bool) (bool, error) {
	before := item.Settings().Resolved()
	saved := item.Defaults().Overrides()
	oldPath := item.Path
	if oldPath == "" {
		if dest, err := destination(before); err == nil && fileExists(dest) {
			oldPath = dest
		}
	}

	lists := [][]rules.Rule{c.Rules}
	if src, ok := c.sources[item.SourceID]; ok {
		lists = append(lists, src.Rules)
	}
	rules.Run(item, entry, lists...)
	if err := rules.Finalize(item); err != nil {
		item.Defaults().Reset()
		item.Defaults().SetAll(saved)
		return false, err
	}

	changed := !reflect.DeepEqual(before, item.Settings().Resolved())
	if changed && addToChangeSet {
		c.changes.Append(oldPath, item)
	}
	return changed, nil
}

// Declared renders the collection back into its file form, persisting only
// user overrides for each expected item.
func (c *Collection) Declared() *Declared {
	d := &Declared{
		Name:         c.Name,
		ItemDefaults: c.template.Overrides(),
		Rules:        rules.Specs(c.Rules),
		Sources:      make([]DeclaredSource, 0, len(c.order)),
		Items:        []DeclaredItem{},
		OutputDir:    c.outDecl,
	}
	if len(d.ItemDefaults) == 0 {
		d.ItemDefaults = nil
	}
	for id := range c.ignored {
		d.Ignored = append(d.Ignored, id)
	}
	slices.Sort(d.Ignored)
	for _, src := range c.Sources() {
		var folder string
		if v, ok := src.Settings().Overrides()[KeyFolder].(string); ok {
			folder = v
		}
		d.Sources = append(d.Sources, DeclaredSource{ID: src.ID, Title: src.Title, Folder: folder, Rules: rules.Specs(src.Rules)})
	}
	for _, item := range c.Expected() {
		di := DeclaredItem{ID: item.ID, SourceID: item.SourceID}
		if overrides := item.Settings().Overrides(); len(overrides) > 0 {
			di.Settings = overrides
		}
		d.Items = append(d.Items, di)
	}
	return d
}
