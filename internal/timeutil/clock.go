// Package timeutil abstracts the time source that paces controller ticks and
// timestamps phase decisions, so tests can drive signal timing by hand.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the controller's view of time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// MockClock only moves when Advance is called. Tickers created from it fire
// when an Advance crosses their next due time.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*mockTicker]struct{}
}

// NewMockClock returns a MockClock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, tickers: make(map[*mockTicker]struct{})}
}

// Now returns the simulated time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. A ticker that came due fires once,
// even if d spans several periods; like time.Ticker it drops ticks a slow
// reader missed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for t := range c.tickers {
		if c.now.Before(t.due) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		for !c.now.Before(t.due) {
			t.due = t.due.Add(t.period)
		}
	}
}

// NewTicker returns a ticker first due one period from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive ticker period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{clock: c, ch: make(chan time.Time, 1), period: d, due: c.now.Add(d)}
	c.tickers[t] = struct{}{}
	return t
}

type mockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration
	due    time.Time
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	delete(t.clock.tickers, t)
}

// ImmediateTicker always has a tick ready, stamped with clock.Now(). Replays
// use it to run a recorded session as fast as it can be processed.
type ImmediateTicker struct {
	once sync.Once
	done chan struct{}
	ch   chan time.Time
}

// NewImmediateTicker starts the ticker goroutine; Stop ends it.
func NewImmediateTicker(clock Clock) *ImmediateTicker {
	t := &ImmediateTicker{done: make(chan struct{}), ch: make(chan time.Time)}
	go func() {
		for {
			select {
			case t.ch <- clock.Now():
			case <-t.done:
				return
			}
		}
	}()
	return t
}

func (t *ImmediateTicker) C() <-chan time.Time { return t.ch }

// Stop is safe to call more than once.
func (t *ImmediateTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}
