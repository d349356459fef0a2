package library

import "sync"

// Change is one pending file operation. An empty Path means the item has no
// library file yet and must be materialized from the fetch cache.
type Change struct {
	Path string
	Item *Item
}

// IsCreate reports whether the change materializes a new file.
func (c Change) IsCreate() bool { return c.Path == "" }

// ChangeSet is the FIFO of pending file operations, guarded by one mutex.
type ChangeSet struct {
	mu      sync.Mutex
	changes []Change
}

// Append queues a change.
func (s *ChangeSet) Append(path string, item *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, Change{Path: path, Item: item})
}

// Len returns the number of pending changes.
func (s *ChangeSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

// Pending returns a copy of the queue.
func (s *ChangeSet) Pending() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Change(nil), s.changes...)
}

// Drain hands every queued change to fn in FIFO order while holding the lock
// for the whole pass, then empties the queue. fn must not call Append.
func (s *ChangeSet) Drain(fn func(Change)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.changes)
	for _, change := range s.changes {
		fn(change)
	}
	clear(s.changes)
	s.changes = s.changes[:0]
	return n
}
