// Package rules derives per-item filename and tag settings from catalog
// metadata.
//
// A Rule is a named transformer with a serializable parameter blob so rule
// lists can be stored in collection files and rebuilt through a Registry.
// Run applies rule lists in order and merges each non-empty result into the
// item's defaults layer, never into its user settings, so explicit user
// overrides always win. Finalize enforces the derived filename and sanitizes
// the path segments.
package rules
