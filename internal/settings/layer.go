package settings

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrMissingKey reports a lookup that missed every layer in the default chain.
var ErrMissingKey = errors.New("missing key")

// Layer is a key/value mapping backed by an optional chain of default layers.
type Layer struct {
	mu       sync.RWMutex
	values   map[string]any
	defaults *Layer
}

// New returns a root layer whose overrides are a copy of values.
func New(values map[string]any) *Layer {
	l := &Layer{values: make(map[string]any, len(values))}
	maps.Copy(l.values, values)
	return l
}

// Get resolves key through the overrides and then the default chain.
func (l *Layer) Get(key string) (any, error) {
	for layer := l; layer != nil; layer = layer.parent() {
		if value, ok := layer.own(key); ok {
			return value, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
}

// GetString resolves key and asserts a string value. A nil value yields "".
func (l *Layer) GetString(key string) (string, error) {
	value, err := l.Get(key)
	if err != nil {
		return "", err
	}
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("key %q holds %T, not string", key, value)
	}
}

// String is GetString without the error, for keys known to be present.
func (l *Layer) String(key string) string {
	value, _ := l.GetString(key)
	return value
}

// Set records an override on this layer only.
func (l *Layer) Set(key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.values == nil {
		l.values = make(map[string]any)
	}
	l.values[key] = value
}

// SetAll records every entry of values as an override.
func (l *Layer) SetAll(values map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.values == nil {
		l.values = make(map[string]any, len(values))
	}
	maps.Copy(l.values, values)
}

// Has reports whether key exists on this layer or anywhere in its default chain.
func (l *Layer) Has(key string) bool {
	_, err := l.Get(key)
	return err == nil
}

// HasOwn reports whether key is overridden on this layer.
func (l *Layer) HasOwn(key string) bool {
	_, ok := l.own(key)
	return ok
}

// IsDefault reports whether key resolves from the default chain rather than
// an override on this layer.
func (l *Layer) IsDefault(key string) bool {
	return !l.HasOwn(key) && l.parent() != nil && l.parent().Has(key)
}

// Remove deletes the override for key. The default value is never written in
// its place.
func (l *Layer) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
}

// Reset removes every override on this layer.
func (l *Layer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.values)
}

// UpdateDefaults merges values into the default source. A root layer gains
// an empty default layer on first use.
func (l *Layer) UpdateDefaults(values map[string]any) {
	l.mu.Lock()
	if l.defaults == nil {
		l.defaults = &Layer{values: make(map[string]any, len(values))}
	}
	defaults := l.defaults
	l.mu.Unlock()
	defaults.SetAll(values)
}

// Defaults returns the default source, or nil for a root layer.
func (l *Layer) Defaults() *Layer {
	return l.parent()
}

// Derive creates a new layer from l.
//
// With inheritDefaults the new layer starts empty and uses l as its default
// source, so later changes to l show through. Without it the new layer
// starts with a copy of l's overrides and shares l's default source.
func (l *Layer) Derive(inheritDefaults bool) *Layer {
	if inheritDefaults {
		return &Layer{values: make(map[string]any), defaults: l}
	}
	return &Layer{values: l.Overrides(), defaults: l.parent()}
}

// Overrides returns a copy of this layer's own keys and values.
func (l *Layer) Overrides() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]any, len(l.values))
	maps.Copy(out, l.values)
	return out
}

// Keys returns the sorted union of override and default keys.
func (l *Layer) Keys() []string {
	seen := make(map[string]struct{})
	for layer := l; layer != nil; layer = layer.parent() {
		layer.mu.RLock()
		for key := range layer.values {
			seen[key] = struct{}{}
		}
		layer.mu.RUnlock()
	}
	return slices.Sorted(maps.Keys(seen))
}

// Len is the size of the key union, never counting a shadowed key twice.
func (l *Layer) Len() int {
	return len(l.Keys())
}

// Resolved flattens the chain into a single map of effective values.
func (l *Layer) Resolved() map[string]any {
	out := make(map[string]any)
	for _, key := range l.Keys() {
		if value, err := l.Get(key); err == nil {
			out[key] = value
		}
	}
	return out
}

func (l *Layer) own(key string) (any, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value, ok := l.values[key]
	return value, ok
}

func (l *Layer) parent() *Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.defaults
}
