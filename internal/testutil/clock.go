package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven clock. By default every wait fires
// immediately and advances Now by the requested duration. After Hold, waits
// never fire and are announced on Waiting instead.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waits   []time.Duration
	hold    bool
	waiting chan time.Duration
}

// NewFakeClock returns a clock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start, waits: []time.Duration{}, waiting: make(chan time.Duration, 64)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After records the wait and returns a channel that fires at once unless
// the clock is held.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)

	ch := make(chan time.Time, 1)
	if c.hold {
		select {
		case c.waiting <- d:
		default:
		}
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

// Hold makes subsequent waits block forever.
func (c *FakeClock) Hold() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

// Waiting announces waits started while the clock is held.
func (c *FakeClock) Waiting() <-chan time.Duration {
	return c.waiting
}

// Waits returns every duration passed to After so far.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// TotalWait sums every duration passed to After.
func (c *FakeClock) TotalWait() time.Duration {
	var total time.Duration
	for _, d := range c.Waits() {
		total += d
	}
	return total
}
