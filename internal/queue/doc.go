// Package queue persists fetch jobs in SQLite.
//
// Every download submitted by a sync run gets a row that follows the job
// through queued, throttled, running, and a terminal status, along with the
// downloader output when it fails. The ledger backs the jobs listing and
// lets retry find the items whose most recent attempt failed.
//
// The database is treated as transient run history rather than an archive.
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package queue
