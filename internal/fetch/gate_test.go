package fetch_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"tunesmith/internal/fetch"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualClock only moves when Advance is called.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) fetch.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	kept := c.timers[:0]
	for _, t := range c.timers {
		if !t.at.After(c.now) && !t.stopped {
			due = append(due, t)
			continue
		}
		kept = append(kept, t)
	}
	c.timers = kept
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func TestGateSpacesAcquisitions(t *testing.T) {
	const (
		waiters = 5
		delay   = 3 * time.Second
	)
	clock := newManualClock()
	gate := fetch.NewGate(delay, clock)

	grants := make(chan time.Time, waiters)
	for range waiters {
		go func() {
			if err := gate.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			grants <- clock.Now()
		}()
	}

	var times []time.Time
	for i := range waiters {
		select {
		case ts := <-grants:
			times = append(times, ts)
		case <-time.After(2 * time.Second):
			t.Fatalf("grant %d never arrived", i)
		}
		select {
		case ts := <-grants:
			t.Fatalf("second grant at %v before the gate released", ts)
		case <-time.After(20 * time.Millisecond):
		}
		clock.Advance(delay)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < delay {
			t.Fatalf("grants %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestGateReleasesWithoutNewWaiter(t *testing.T) {
	clock := newManualClock()
	gate := fetch.NewGate(time.Second, clock)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("gate not released by its timer: %v", err)
	}
}

func TestGateAcquireHonoursContext(t *testing.T) {
	gate := fetch.NewGate(time.Hour, newManualClock())
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gate.Acquire(ctx); err == nil {
		t.Fatal("expected cancelled acquire to fail")
	}
}
