// Package config loads, normalizes, and validates tunesmith configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours the TUNESMITH_LIBRARY_DIR environment fallback. The
// Config type centralizes every knob the CLI needs and builds the root
// settings layer that collections inherit from.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
