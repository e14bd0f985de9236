package sheet

import (
	"sync"
	"time"
)

// Clock supplies entity timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in a fixed location and never goes backwards.
//
// If the wall clock has not advanced past the previous reading (coarse timer,
// NTP step), the previous reading plus one nanosecond is returned instead, so
// two calls in causal sequence always produce strictly increasing instants.
// Returned times carry no monotonic reading, which keeps them comparable with
// times that went through serialization.
//
// Thread-safety: SystemClock is safe for concurrent use.
type SystemClock struct {
	mu   sync.Mutex
	loc  *time.Location
	last time.Time
	wall func() time.Time
}

// NewSystemClock creates a clock reporting times in loc (time.Local if nil).
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{loc: loc, wall: time.Now}
}

// Now returns the current time, strictly after every earlier reading.
func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.wall().In(c.loc).Round(0)
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}
