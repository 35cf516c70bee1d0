package ratelimit

import (
	"time"
)

// State is a point-in-time view of a sliding window.
type State struct {
	// Granted is the number of requests granted within the trailing window.
	Granted int `json:"granted"`

	// Limit is the maximum number of requests allowed within the window.
	Limit int `json:"limit"`

	// Window is the length of the trailing window.
	Window time.Duration `json:"window"`

	// Oldest is the timestamp of the oldest grant still inside the window.
	// Zero when the window is empty or the backend does not track it.
	Oldest time.Time `json:"oldest"`

	// At is the time the snapshot was taken.
	At time.Time `json:"at"`
}

// Remaining returns how many requests may be granted right now.
func (s State) Remaining() int {
	if s.Granted >= s.Limit {
		return 0
	}
	return s.Limit - s.Granted
}

// Saturated returns true if the next Acquire would have to wait.
func (s State) Saturated() bool {
	return s.Granted >= s.Limit
}

// TimeUntilSlot returns how long until a slot frees up.
// Returns 0 if a slot is available now.
func (s State) TimeUntilSlot() time.Duration {
	if !s.Saturated() || s.Oldest.IsZero() {
		return 0
	}
	wait := s.Window - s.At.Sub(s.Oldest)
	if wait < 0 {
		return 0
	}
	return wait
}
