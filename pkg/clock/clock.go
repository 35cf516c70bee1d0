// Package clock abstracts time for the request orchestration layer.
//
// Every suspension point in pagefetch (rate limiter waits, retry backoff and
// the politeness delay between pages) goes through a Clock, so the same
// sequencing code runs against two backends:
//
//   - Real blocks the calling goroutine on a timer and wakes early when the
//     context is cancelled.
//   - Virtual never blocks. Sleep advances a virtual "now" and returns, which
//     gives deterministic, instant tests and simulations. Virtual time is one
//     shared timeline, so it is exact only while one caller sleeps at a time.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the current time and a context-aware sleep.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep suspends the caller for d. It returns ctx.Err() if the context
	// is done before d elapses.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Virtual is a manually driven clock. It is safe for concurrent use, but it
// serialises sleepers: each Sleep moves the single "now" forward by its own
// duration, so overlapping sleeps from concurrent goroutines add up instead of
// running in parallel. Now() then overstates wall-clock elapsed time, while
// Sleeps() and Slept() still report the suspensions each caller asked for.
// Rate limits stay conservative under this model: grants only spread further
// apart. Use Real when elapsed time across concurrent workers matters.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Sleep advances virtual time by d and records the sleep. Concurrent sleeps
// are applied one after another.
func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d < 0 {
		d = 0
	}

	v.mu.Lock()
	v.now = v.now.Add(d)
	v.sleeps = append(v.sleeps, d)
	v.mu.Unlock()
	return nil
}

// Advance moves virtual time forward without recording a sleep.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	v.now = v.now.Add(d)
	v.mu.Unlock()
}

// Sleeps returns a copy of every duration passed to Sleep, in order.
func (v *Virtual) Sleeps() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]time.Duration, len(v.sleeps))
	copy(out, v.sleeps)
	return out
}

// Slept returns the total virtual time spent in Sleep.
func (v *Virtual) Slept() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	var total time.Duration
	for _, d := range v.sleeps {
		total += d
	}
	return total
}
