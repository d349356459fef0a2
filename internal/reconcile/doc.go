// Package reconcile computes and applies the difference between a
// collection's declared items and the files in its output directory.
//
// Prepare runs the rule chain over every declared item and queues moves and
// retags for files that no longer match their resolved settings.
// GetDownloadSet consults each source's remote listing and returns the items
// that still need fetching; it also files already-cached items straight into
// the library, so it is a reconcile-on-read and mutates the model. Fetch
// completions enter through DownloadCallback, and ResolveChangeSet applies
// every queued operation. Per-item failures are recorded in the Report and
// never stop the rest of the batch.
package reconcile
