package workflow

import (
	"tunesmith/internal/library"
	"tunesmith/internal/reconcile"
)

// suggestThreshold is the minimum similarity for an untracked file to be
// offered as a match for a missing item.
const suggestThreshold = 0.6

// Plan describes what a sync would do without doing it.
type Plan struct {
	Collection string
	Path       string
	// Changes are the moves and retags queued for files already on disk.
	Changes []library.Change
	// FromCache are declared items that would be filed from the cache.
	FromCache []*library.Item
	// ToFetch are declared items that would be downloaded.
	ToFetch     []*library.Item
	Suggestions []library.Suggestion
	Report      reconcile.Report
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Changes) == 0 && len(p.FromCache) == 0 && len(p.ToFetch) == 0
}
