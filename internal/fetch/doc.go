// Package fetch drives the external downloader that pulls media from remote
// sources.
//
// Client wraps the yt-dlp binary behind an Executor so tests can substitute
// canned output. Every remote call passes through a Gate, a lock released by a
// timer rather than by its holder, which keeps calls at least the configured
// delay apart no matter how many workers are waiting. Pipeline runs downloads
// on a bounded worker pool, records each job's transitions, updates the
// catalog, and reports completion through a per-job callback.
//
// Failed jobs are terminal. Nothing here retries; resubmission is up to the
// caller.
package fetch
