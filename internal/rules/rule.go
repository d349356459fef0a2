package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tunesmith/internal/catalog"
	"tunesmith/internal/services"
	"tunesmith/internal/settings"
	"tunesmith/internal/textutil"
)

// Rule derives a partial settings update from an item's catalog entry.
// current is the item's resolved settings before the rule runs, which lets
// later rules refine what earlier ones produced.
type Rule interface {
	Name() string
	Params() map[string]any
	Apply(entry catalog.Entry, current map[string]any) map[string]any
}

// Constructor builds a rule from its stored parameters.
type Constructor func(params map[string]any) (Rule, error)

// Spec is the serialized form of a rule.
type Spec struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// SpecOf returns the serialized form of rule.
func SpecOf(rule Rule) Spec {
	return Spec{Name: rule.Name(), Params: rule.Params()}
}

// Specs serializes a rule list.
func Specs(list []Rule) []Spec {
	out := make([]Spec, 0, len(list))
	for _, rule := range list {
		out = append(out, SpecOf(rule))
	}
	return out
}

// Registry maps rule names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry with the built-in rules registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(ArtistTitleName, NewArtistTitle)
	r.MustRegister(TitleCaseName, NewTitleCase)
	r.MustRegister(SetName, NewSet)
	return r
}

// Register adds a constructor under name. Names are unique.
func (r *Registry) Register(name string, ctor Constructor) error {
	name = strings.TrimSpace(name)
	if name == "" || ctor == nil {
		return fmt.Errorf("register rule: name and constructor are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("register rule: %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// MustRegister is Register for startup wiring, panicking on conflict.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Names lists registered rule names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the rule described by spec.
func (r *Registry) Build(spec Spec) (Rule, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[spec.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "rules", "build", fmt.Sprintf("unknown rule %q", spec.Name), nil)
	}
	rule, err := ctor(spec.Params)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "rules", "build", spec.Name, err)
	}
	return rule, nil
}

// BuildAll constructs a rule list, stopping at the first invalid spec.
func (r *Registry) BuildAll(specs []Spec) ([]Rule, error) {
	out := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := r.Build(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Target is an item whose derived settings the engine updates.
type Target interface {
	Defaults() *settings.Layer
	Settings() *settings.Layer
}

// Run applies every rule in order, collection-level lists before
// source-level ones, merging non-empty updates into the target's defaults.
func Run(target Target, entry catalog.Entry, ruleLists ...[]Rule) {
	for _, list := range ruleLists {
		for _, rule := range list {
			update := rule.Apply(entry, target.Settings().Resolved())
			if len(update) > 0 {
				target.Defaults().SetAll(update)
			}
		}
	}
}

// Finalize requires a non-empty filename and strips characters that are
// illegal in paths from filename and folder.
func Finalize(target Target) error {
	for _, key := range []string{"folder", "filename"} {
		if !target.Settings().Has(key) {
			continue
		}
		raw, err := target.Settings().GetString(key)
		if err != nil {
			return services.Wrap(services.ErrValidation, "rules", "finalize", key, err)
		}
		clean := textutil.SanitizeFileName(raw)
		if clean == raw {
			continue
		}
		if target.Settings().HasOwn(key) {
			target.Settings().Set(key, clean)
		} else {
			target.Defaults().Set(key, clean)
		}
	}
	filename, _ := target.Settings().GetString("filename")
	if filename == "" {
		return services.Wrap(services.ErrMissingFilename, "rules", "finalize", "rule chain produced no filename", nil)
	}
	return nil
}
