package reconcile

import (
	"slices"

	"tunesmith/internal/services"
)

// Failure is one item that could not be reconciled.
type Failure struct {
	ItemID   string
	SourceID string
	Outcome  services.Outcome
	Err      error
}

// Report summarizes a reconciliation run.
type Report struct {
	Fetched  []string
	Created  []string
	Moved    []string
	Retagged []string
	Failed   []Failure
	// Untracked are media files with no organization tag.
	Untracked []string
	// Orphans are tagged files whose item is not declared.
	Orphans []string
	// Unreadable are files whose tags could not be read.
	Unreadable []string
}

// HasFailures reports whether any item failed outright.
func (r Report) HasFailures() bool {
	for _, f := range r.Failed {
		if f.Outcome == services.OutcomeFailed {
			return true
		}
	}
	return false
}

// FailedIDs returns the ids of failed items in order.
func (r Report) FailedIDs() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.ItemID)
	}
	return out
}

func (r Report) clone() Report {
	return Report{
		Fetched:    slices.Clone(r.Fetched),
		Created:    slices.Clone(r.Created),
		Moved:      slices.Clone(r.Moved),
		Retagged:   slices.Clone(r.Retagged),
		Failed:     slices.Clone(r.Failed),
		Untracked:  slices.Clone(r.Untracked),
		Orphans:    slices.Clone(r.Orphans),
		Unreadable: slices.Clone(r.Unreadable),
	}
}
