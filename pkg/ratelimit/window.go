package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/pagefetch/pkg/clock"
)

// Window is an in-memory sliding-window limiter. It is safe for concurrent
// use; share one *Window between executors to enforce a global budget.
type Window struct {
	cfg   Config
	clock clock.Clock

	mu         sync.Mutex
	timestamps []time.Time // ascending
}

// NewWindow creates an in-memory sliding window. A nil clock means clock.Real.
func NewWindow(cfg Config, clk clock.Clock) (*Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Window{
		cfg:        cfg,
		clock:      clk,
		timestamps: make([]time.Time, 0, cfg.MaxRequests),
	}, nil
}

// Config returns the limits of the window.
func (w *Window) Config() Config {
	return w.cfg
}

// Acquire blocks until granting one more request keeps at most MaxRequests
// grants within any trailing Window.
func (w *Window) Acquire(ctx context.Context) error {
	return acquireLoop(ctx, w.clock, BackendMemory, w.reserve)
}

// reserve runs prune, check and append under one lock. The clock is read
// inside the lock so timestamps stay ordered across goroutines.
func (w *Window) reserve(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	if len(w.timestamps) < w.cfg.MaxRequests {
		w.timestamps = append(w.timestamps, now)
		return 0, nil
	}

	return w.cfg.Window - now.Sub(w.timestamps[0]), nil
}

// prune drops grants that are at least one window old. Caller holds mu.
func (w *Window) prune(now time.Time) {
	keep := 0
	for keep < len(w.timestamps) && now.Sub(w.timestamps[keep]) >= w.cfg.Window {
		keep++
	}
	if keep > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[keep:]...)
	}
}

// Reset clears all granted timestamps.
func (w *Window) Reset(_ context.Context) error {
	w.mu.Lock()
	w.timestamps = w.timestamps[:0]
	w.mu.Unlock()
	return nil
}

// State returns a snapshot of the window.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	state := State{
		Granted: len(w.timestamps),
		Limit:   w.cfg.MaxRequests,
		Window:  w.cfg.Window,
		At:      now,
	}
	if len(w.timestamps) > 0 {
		state.Oldest = w.timestamps[0]
	}
	return state
}
