// Package main hosts the tunesmith CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds a
// workflow.Runner for commands that touch collections, and renders results
// as tables. Sync, retry, plan, and watch drive the workflow package; the
// catalog, jobs, collection, and config groups are maintenance commands that
// read or edit the persisted files directly. Logs reads the per-pass run
// logs the workflow leaves behind.
//
// Keep this package lean: add behaviour to the internal packages first and
// surface it here through a command or flag.
package main
