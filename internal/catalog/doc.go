// Package catalog persists what is known about every remote item: the
// metadata reported by the fetch service and whether the raw media file is
// present in the local fetch cache.
//
// The catalog is the single source of truth for "is this item fetched". It is
// stored as one JSON document that is rewritten in full on every Save, and it
// can be reconciled against the cache directory to repair drift after a crash
// or manual cleanup.
package catalog
