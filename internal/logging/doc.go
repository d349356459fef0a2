// Package logging assembles structured slog loggers and formatting helpers used
// across tunesmith.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so sync code can tag log lines with run,
// source, and item identifiers. A no-op logger is provided for tests and for
// wiring code that cannot fail.
package logging
