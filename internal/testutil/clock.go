package testutil

import (
	"sync"
	"time"
)

// DefaultBase is the instant a DeterministicClock counts from.
// It carries a +02:00 offset so tests also cover offset round-tripping.
var DefaultBase = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.FixedZone("", 2*60*60))

// DeterministicClock provides a thread-safe, reproducible clock for tests.
//
// Each call to Now advances a sequence counter and returns base + seq*step,
// so the first reading is base + step. Reset rewinds the sequence so the same
// scenario can run again with identical timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	seq  int64
}

// NewDeterministicClock creates a clock starting at DefaultBase with one-second steps.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultBase, time.Second)
}

// NewDeterministicClockAt creates a clock with an explicit base and step.
// A negative step models a wall clock going backwards.
func NewDeterministicClockAt(base time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{base: base, step: step}
}

// Now advances the clock and returns the new reading.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.base.Add(time.Duration(c.seq) * c.step)
}

// Current returns the number of readings taken so far.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock. The next Now returns base + step again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
