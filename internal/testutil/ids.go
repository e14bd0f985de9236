package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SequenceID returns the n-th id handed out by a SequenceIDs generator:
// 00000000-0000-4000-8000-<n as 12 hex digits>.
func SequenceID(n int64) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012x", n))
}

// SequenceIDs generates predictable ids for golden comparisons.
//
// Thread-safety: SequenceIDs is safe for concurrent use via internal mutex.
type SequenceIDs struct {
	mu  sync.Mutex
	seq int64
}

// NewSequenceIDs creates a generator whose first id is SequenceID(1).
func NewSequenceIDs() *SequenceIDs {
	return &SequenceIDs{}
}

// NewID returns the next id in the sequence.
func (g *SequenceIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return SequenceID(g.seq)
}

// FixedIDs returns predetermined ids in order, e.g. to force a collision.
//
// Panics when all ids have been consumed. This is a fail-fast approach
// that surfaces tests creating more entities than they planned for.
type FixedIDs struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...uuid.UUID) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// NewID returns the next predetermined id.
func (g *FixedIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("FixedIDs: all %d ids exhausted", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
