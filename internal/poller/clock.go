package poller

import (
	"sync"
	"time"
)

// Clock creates tickers. Tests swap in FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of *time.Ticker the poller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is backed by package time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock only moves when Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*FakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("poller: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &FakeTicker{ch: make(chan time.Time, 1), period: d, next: f.now.Add(d)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward and fires every ticker whose deadline has passed.
// Like time.Ticker, a tick is dropped when the previous one has not been received.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		t.fire(f.now)
	}
}

// Tickers returns every ticker created so far.
func (f *FakeClock) Tickers() []*FakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTicker(nil), f.tickers...)
}

// FakeTicker is a Ticker driven by FakeClock.
type FakeTicker struct {
	ch     chan time.Time
	period time.Duration

	mu      sync.Mutex
	next    time.Time
	stopped bool
}

func (t *FakeTicker) C() <-chan time.Time { return t.ch }

func (t *FakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop has been called.
func (t *FakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *FakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.stopped && !now.Before(t.next) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.period)
	}
}
