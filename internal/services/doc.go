// Package services defines shared utilities consumed by the sync workflow and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run, source, and item identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent report outcomes (failed vs skipped).
//
// Use these helpers when wiring new sync logic so operational behaviour stays
// uniform across fetch, reconcile, and filing.
package services
