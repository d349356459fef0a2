// Package organizer files fetched media into the library.
//
// It copies new files out of the fetch cache, moves existing files when their
// resolved destination changes, and writes the managed tags. File operation
// failures are returned to the caller so the item can be reported as failed;
// tag write failures are logged and never undo a completed placement.
package organizer
