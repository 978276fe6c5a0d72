package core

import "go.uber.org/atomic"

// LogicalClock is the Lamport clock ordering lock requests. It only
// moves forward: local events tick it by one, a received timestamp
// moves it to the larger of that timestamp and its own value plus one.
type LogicalClock interface {
	// Advance by one and return the new value. Done before every send.
	Tick() uint64

	// Current value.
	Tock() uint64

	// Receive rule: set the clock to max(seen, current+1) and return
	// the new value.
	Sync(seen uint64) uint64

	// Move forward to at least target. A no-op when already past it.
	Leap(target uint64)
}

type lamportClock struct {
	value atomic.Uint64
}

// NewClock creates a clock starting at zero.
func NewClock() LogicalClock {
	return &lamportClock{}
}

func (c *lamportClock) Tick() uint64 {
	return c.value.Inc()
}

func (c *lamportClock) Tock() uint64 {
	return c.value.Load()
}

func (c *lamportClock) Sync(seen uint64) uint64 {
	for {
		current := c.value.Load()
		next := current + 1
		if seen > next {
			next = seen
		}
		if c.value.CAS(current, next) {
			return next
		}
	}
}

func (c *lamportClock) Leap(target uint64) {
	for {
		current := c.value.Load()
		if target <= current {
			return
		}
		if c.value.CAS(current, target) {
			return
		}
	}
}
