package engine

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers. Clock is the
// production implementation; tests may substitute a resettable one.
type Sequencer interface {
	Next() int64
}

// Clock is the logical clock that stamps queue entries and trace events.
// Every call to Next returns a value strictly greater than any earlier one,
// across all goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
