package client

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.BaseDelay != 1*time.Second {
		t.Errorf("BaseDelay = %v, want 1s", config.BaseDelay)
	}
	if !config.ExponentialBackoff {
		t.Error("ExponentialBackoff = false, want true")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewRetryPolicy_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config RetryConfig
	}{
		{name: "negative retries", config: RetryConfig{MaxRetries: -1}},
		{name: "negative base delay", config: RetryConfig{BaseDelay: -time.Second}},
		{name: "negative max delay", config: RetryConfig{MaxDelay: -time.Second}},
		{name: "jitter above one", config: RetryConfig{Jitter: 1.5}},
		{name: "negative jitter", config: RetryConfig{Jitter: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetryPolicy(tt.config)
			if !errors.Is(err, ErrInvalidRetryConfig) {
				t.Errorf("NewRetryPolicy() error = %v, want ErrInvalidRetryConfig", err)
			}
		})
	}
}

func TestBackoffDelay_Exponential(t *testing.T) {
	policy, err := NewRetryPolicy(RetryConfig{MaxRetries: 5, BaseDelay: 500 * time.Millisecond, ExponentialBackoff: true})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 500 * time.Millisecond},
		{attempt: 2, expected: 1 * time.Second},
		{attempt: 3, expected: 2 * time.Second},
		{attempt: 4, expected: 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			got := policy.BackoffDelay(tt.attempt, errors.New("connection reset"))
			if got != tt.expected {
				t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestBackoffDelay_Linear(t *testing.T) {
	policy, err := NewRetryPolicy(RetryConfig{MaxRetries: 5, BaseDelay: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	for attempt := 1; attempt <= 4; attempt++ {
		if got := policy.BackoffDelay(attempt, nil); got != 2*time.Second {
			t.Errorf("BackoffDelay(%d) = %v, want 2s", attempt, got)
		}
	}
}

func TestBackoffDelay_MaxDelayCap(t *testing.T) {
	policy, err := NewRetryPolicy(RetryConfig{BaseDelay: time.Second, ExponentialBackoff: true, MaxDelay: 3 * time.Second})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	if got := policy.BackoffDelay(5, nil); got != 3*time.Second {
		t.Errorf("BackoffDelay(5) = %v, want 3s cap", got)
	}

	// A rate-limit hint wins over the cap.
	if got := policy.BackoffDelay(5, errors.New("Retry-After: 10")); got != 10*time.Second {
		t.Errorf("BackoffDelay with hint = %v, want 10s", got)
	}
}

func TestBackoffDelay_Jitter(t *testing.T) {
	policy, err := NewRetryPolicy(RetryConfig{BaseDelay: time.Second, Jitter: 0.2})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	for i := 0; i < 50; i++ {
		got := policy.BackoffDelay(1, nil)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("BackoffDelay with jitter = %v, want within [0.8s, 1.2s]", got)
		}
	}
}

func TestBackoffDelay_RateLimitHint(t *testing.T) {
	policy, err := NewRetryPolicy(RetryConfig{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, ExponentialBackoff: true})
	if err != nil {
		t.Fatalf("NewRetryPolicy() error = %v", err)
	}

	tests := []struct {
		name     string
		attempt  int
		err      error
		expected time.Duration
	}{
		{name: "retry-after header text", attempt: 1, err: errors.New("Retry-After: 7"), expected: 7 * time.Second},
		{name: "lower case retry after", attempt: 1, err: errors.New("upstream said retry after 2.5 seconds"), expected: 2500 * time.Millisecond},
		{name: "429 without number uses floor", attempt: 1, err: errors.New("HTTP 429 Too Many Requests"), expected: time.Second},
		{name: "429 followed by retry-after", attempt: 1, err: errors.New("status 429: rate limited, retry-after=3"), expected: 3 * time.Second},
		{name: "computed delay larger than hint", attempt: 6, err: errors.New("Retry-After: 1"), expected: 3200 * time.Millisecond},
		{name: "negative hint falls back to floor", attempt: 1, err: errors.New("Retry-After: -5"), expected: time.Second},
		{name: "number after words", attempt: 1, err: errors.New("429 Too Many Requests: please wait 30 seconds"), expected: 30 * time.Second},
		{name: "no marker", attempt: 1, err: errors.New("connection refused after 30 seconds"), expected: 100 * time.Millisecond},
		{name: "typed hint", attempt: 1, err: hintError{delay: 4 * time.Second}, expected: 4 * time.Second},
		{name: "wrapped typed hint", attempt: 1, err: fmt.Errorf("page 3: %w", hintError{delay: 9 * time.Second}), expected: 9 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.BackoffDelay(tt.attempt, tt.err)
			if got != tt.expected {
				t.Errorf("BackoffDelay(%d, %q) = %v, want %v", tt.attempt, tt.err, got, tt.expected)
			}
		})
	}
}

func TestRateLimitHint(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantDelay time.Duration
		wantOK    bool
	}{
		{name: "nil error", err: nil, wantOK: false},
		{name: "plain error", err: errors.New("boom"), wantOK: false},
		{name: "retry-after", err: errors.New("RETRY-AFTER: 12"), wantDelay: 12 * time.Second, wantOK: true},
		{name: "rate limit marker", err: errors.New("rate limit exceeded"), wantDelay: DefaultRateLimitDelay, wantOK: true},
		{name: "429 inside a number is not a marker", err: errors.New("request id 14290 failed"), wantOK: false},
		{name: "number later in the message", err: errors.New("429 Too Many Requests: please wait 30 seconds"), wantDelay: 30 * time.Second, wantOK: true},
		{name: "number with unit suffix", err: errors.New("rate limit exceeded; try again in 12s"), wantDelay: 12 * time.Second, wantOK: true},
		{name: "fractional seconds later", err: errors.New("Too Many Requests (backoff for 1.5 seconds)"), wantDelay: 1500 * time.Millisecond, wantOK: true},
		{name: "negative later number falls back", err: errors.New("rate limited, offset -4"), wantDelay: DefaultRateLimitDelay, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, ok := RateLimitHint(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("RateLimitHint() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && delay != tt.wantDelay {
				t.Errorf("RateLimitHint() delay = %v, want %v", delay, tt.wantDelay)
			}
		})
	}
}

type hintError struct {
	delay time.Duration
}

func (e hintError) Error() string             { return "throttled" }
func (e hintError) RetryAfter() time.Duration { return e.delay }
