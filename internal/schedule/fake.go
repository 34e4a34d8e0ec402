package schedule

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. Timer callbacks run synchronously
// inside Advance, in deadline order, without the clock lock held.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFakeClock creates a fake clock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("schedule: non-positive ticker period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, period: d, next: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer and ticker
// that comes due on the way.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		timer, ticker, at := c.nextDueLocked(target)
		if timer == nil && ticker == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = at
		if ticker != nil {
			ticker.next = ticker.next.Add(ticker.period)
			select {
			case ticker.ch <- at:
			default:
			}
			c.mu.Unlock()
			continue
		}
		timer.fired = true
		c.removeTimerLocked(timer)
		c.mu.Unlock()
		timer.fn()
	}
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns the earliest armed timer deadline.
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best time.Time
	found := false
	for _, t := range c.timers {
		if !found || t.at.Before(best) {
			best, found = t.at, true
		}
	}
	return best, found
}

func (c *FakeClock) nextDueLocked(target time.Time) (*fakeTimer, *fakeTicker, time.Time) {
	var (
		bestTimer  *fakeTimer
		bestTicker *fakeTicker
		best       time.Time
	)
	for _, t := range c.timers {
		if t.at.After(target) {
			continue
		}
		if bestTimer == nil && bestTicker == nil || t.at.Before(best) {
			bestTimer, bestTicker, best = t, nil, t.at
		}
	}
	for _, t := range c.tickers {
		if t.stopped || t.next.After(target) {
			continue
		}
		if bestTimer == nil && bestTicker == nil || t.next.Before(best) {
			bestTimer, bestTicker, best = nil, t, t.next
		}
	}
	return bestTimer, bestTicker, best
}

func (c *FakeClock) removeTimerLocked(t *fakeTimer) {
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.clock.removeTimerLocked(t)
	return true
}

type fakeTicker struct {
	clock   *FakeClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
