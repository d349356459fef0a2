package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed work. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Gate is a lock that releases itself a fixed delay after each acquisition.
// Waiters are served in arrival order.
type Gate struct {
	sem   *semaphore.Weighted
	delay time.Duration
	clock Clock
}

// NewGate returns a gate spacing acquisitions at least delay apart. A nil
// clock uses the wall clock.
func NewGate(delay time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = realClock{}
	}
	return &Gate{sem: semaphore.NewWeighted(1), delay: delay, clock: clock}
}

// Acquire blocks until the gate is free or ctx is done. The caller never
// releases the gate; a timer does.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.delay <= 0 {
		g.sem.Release(1)
		return nil
	}
	g.clock.AfterFunc(g.delay, func() { g.sem.Release(1) })
	return nil
}

// Delay is the minimum spacing between acquisitions.
func (g *Gate) Delay() time.Duration { return g.delay }
