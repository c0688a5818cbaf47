package pacer

import (
	"math"
	"sort"
	"sync"
)

// noDeadline is the sentinel used when a timer is disarmed. It mirrors
// LONG_MAX from spec.md §4.1 step 2: "if none, use LONG_MAX".
const noDeadline = int64(math.MaxInt64)

// Clock is the virtual-time clock the Pacer owns (spec.md §3, "Virtual
// Clock (V)"). It reports a monotonically non-decreasing count of
// nanoseconds and hosts a one-shot timer wheel used both by the Pacer's
// own sync_timer and by chardev's deferred-open timers.
type Clock struct {
	mu      sync.Mutex
	now     int64
	timers  map[*Timer]struct{}
	nextTag uint64
}

// NewClock creates a virtual clock starting at t=0.
func NewClock() *Clock {
	return &Clock{
		timers: make(map[*Timer]struct{}),
	}
}

// Now returns the current virtual time in nanoseconds.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// set moves the clock to t without firing timers. Callers must only
// move it forward. Nothing in this package calls it; time moves
// through Advance.
func (c *Clock) set(t int64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by delta nanoseconds, firing any
// timers whose deadline has passed. The host-clock tick source calls
// this while the emulator is "running" (ticks unfrozen) between grant
// cycles.
func (c *Clock) Advance(delta int64) {
	c.mu.Lock()
	c.now += delta
	now := c.now
	var fired []*Timer
	for t := range c.timers {
		if t.deadline <= now {
			fired = append(fired, t)
		}
	}
	for _, t := range fired {
		delete(c.timers, t)
	}
	c.mu.Unlock()

	// Sort so timers fire in deadline order, matching a single-threaded
	// timer wheel's delivery order.
	sort.Slice(fired, func(i, j int) bool { return fired[i].deadline < fired[j].deadline })
	for _, t := range fired {
		t.fire()
	}
}

// NextDeadline returns the earliest armed deadline (an absolute virtual
// time) across all timers on this clock (spec.md §4.1.c step 2), or
// ok=false if none are armed. No armed deadline is skipped, including
// one at or before the current time.
func (c *Clock) NextDeadline() (deadline int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	best := noDeadline
	for t := range c.timers {
		if t.deadline < best {
			best = t.deadline
		}
	}
	if best == noDeadline {
		return 0, false
	}
	return best, true
}

// NewTimer creates a disarmed one-shot timer whose callback runs
// (synchronously, on the caller's goroutine) when the clock reaches or
// passes the armed deadline.
func (c *Clock) NewTimer(callback func()) *Timer {
	return &Timer{
		clock:    c,
		deadline: noDeadline,
		callback: callback,
	}
}

// Timer is a one-shot virtual-clock timer (spec.md glossary:
// "Deferred-open timer"; also used for the Pacer's sync_timer).
type Timer struct {
	clock    *Clock
	mu       sync.Mutex
	deadline int64
	callback func()
	armed    bool
}

// Reset (re)arms the timer for the given absolute virtual-time
// deadline, replacing any previous deadline.
func (t *Timer) Reset(deadline int64) {
	t.mu.Lock()
	t.deadline = deadline
	t.armed = true
	t.mu.Unlock()

	t.clock.mu.Lock()
	t.clock.timers[t] = struct{}{}
	t.clock.mu.Unlock()
}

// Stop disarms the timer. Idempotent.
func (t *Timer) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.timers, t)
	t.clock.mu.Unlock()

	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
}

func (t *Timer) fire() {
	t.mu.Lock()
	armed := t.armed
	t.armed = false
	cb := t.callback
	t.mu.Unlock()
	if armed && cb != nil {
		cb()
	}
}
