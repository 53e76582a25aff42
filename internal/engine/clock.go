package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping audit events and instance
// saves.
//
// Thread-safety: Clock is safe for concurrent use, though in practice only
// the session owner calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at start. A resumed session continues
// from the last seq recorded for its instance.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
