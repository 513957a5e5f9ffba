// Package remap maintains the bidirectional table between stable backend
// node identifiers and the small sequential identifiers handed to agents.
package remap

import (
	"sync"

	"github.com/hazyhaar/domsnap/internal/protocol"
)

// Table maps backend ids to sequential ids and back. Sequential ids are
// assigned in strict first-registration order starting at 1. Append-only
// within one snapshot's lifetime; Reset clears both directions.
type Table struct {
	mu        sync.RWMutex
	toSeq     map[protocol.BackendID]int
	toBackend map[int]protocol.BackendID
	next      int
}

// New creates an empty Table.
func New() *Table {
	return &Table{
		toSeq:     make(map[protocol.BackendID]int),
		toBackend: make(map[int]protocol.BackendID),
		next:      1,
	}
}

// Register assigns the next sequential id to the backend id, or returns the
// existing assignment. Idempotent.
func (t *Table) Register(id protocol.BackendID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if seq, ok := t.toSeq[id]; ok {
		return seq
	}
	seq := t.next
	t.next++
	t.toSeq[id] = seq
	t.toBackend[seq] = id
	return seq
}

// SequentialID returns the sequential id for a backend id. The second
// return is false when the backend id was never registered.
func (t *Table) SequentialID(id protocol.BackendID) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seq, ok := t.toSeq[id]
	return seq, ok
}

// BackendID returns the backend id for a sequential id. The second return
// is false when the sequential id was never assigned.
func (t *Table) BackendID(seq int) (protocol.BackendID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.toBackend[seq]
	return id, ok
}

// Len returns the number of registered nodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.toSeq)
}

// Reset clears both directions and restarts the counter at 1.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toSeq = make(map[protocol.BackendID]int)
	t.toBackend = make(map[int]protocol.BackendID)
	t.next = 1
}
