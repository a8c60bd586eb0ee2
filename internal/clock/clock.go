// Package clock supplies the timers used by the chat client so reconnect
// and heartbeat scheduling can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type (
	Clock = clockwork.Clock
	Timer = clockwork.Timer
)

func Real() Clock { return clockwork.NewRealClock() }

// Fake is a clockwork fake clock that also remembers the deadlines of the
// AfterFunc timers it created, so tests can assert what is scheduled.
// Callbacks run on their own goroutine once Advance passes their deadline.
type Fake struct {
	*clockwork.FakeClock

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clockwork.Timer

	owner    *Fake
	deadline time.Time
	stopped  bool
}

func NewFake(initial time.Time) *Fake {
	return &Fake{FakeClock: clockwork.NewFakeClockAt(initial)}
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{owner: c, deadline: c.Now().Add(d)}
	timer.Timer = c.FakeClock.AfterFunc(d, func() { go f() })
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if !t.Timer.Stop() {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	active := t.Timer.Reset(d)
	t.deadline = t.owner.Now().Add(d)
	t.stopped = false
	return active
}

// Pending returns the deadlines of timers that are neither stopped nor
// due yet, earliest first, as offsets from the current time.
func (c *Fake) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now()
	live := c.timers[:0]
	var pending []time.Duration
	for _, timer := range c.timers {
		if timer.stopped || !timer.deadline.After(now) {
			continue
		}
		live = append(live, timer)
		pending = append(pending, timer.deadline.Sub(now))
	}
	for i := len(live); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = live
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending
}
