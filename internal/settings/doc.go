// Package settings implements layered key/value configuration with chained
// defaults.
//
// A Layer holds its own overrides and falls back to a default Layer on a miss,
// recursively. Layers are stacked to model scope inheritance: the application
// root feeds each collection, a collection's item template feeds its sources,
// and a source feeds every item created from it. Only a layer's own overrides
// are ever persisted, which is what lets the library file record just the
// values a user explicitly changed.
//
// Resetting a key removes the override rather than copying the default in,
// because defaults are shared and may change independently of the layer.
package settings
