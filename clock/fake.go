package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. It is safe for concurrent use.
//
// Callbacks run on the goroutine calling Advance, without the clock's lock
// held, so a callback may schedule further timers. A callback must not call
// Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64
	callback func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run when the clock is advanced past now+d.
// A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	c.seq++
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if waiter.stopped || waiter.fired {
			return false
		}
		waiter.stopped = true
		return true
	}}
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls inside the window. Timers are fired one at a time with the clock set
// to their deadline, so callbacks observe the time they were scheduled for.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		waiter := c.nextDue(target)
		if waiter == nil {
			break
		}
		waiter.callback()
	}

	c.mu.Lock()
	if c.current.Before(target) {
		c.current = target
	}
	c.mu.Unlock()
}

// Pending reports the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			count++
		}
	}
	return count
}

// nextDue pops the earliest live waiter with a deadline at or before target,
// moving the clock to its deadline. Returns nil when nothing is due.
func (c *FakeClock) nextDue(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			live = append(live, waiter)
		}
	}
	c.waiters = live
	if len(live) == 0 {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].deadline.Equal(live[j].deadline) {
			return live[i].seq < live[j].seq
		}
		return live[i].deadline.Before(live[j].deadline)
	})

	first := live[0]
	if first.deadline.After(target) {
		return nil
	}
	first.fired = true
	if first.deadline.After(c.current) {
		c.current = first.deadline
	}
	return first
}
