package client

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// DefaultRateLimitDelay is the minimum backoff for a rate-limited call whose
// error carries no parsable delay.
const DefaultRateLimitDelay = time.Second

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts per call. A call is always
	// attempted at least once, so 0 and 1 both mean "no retry".
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// ExponentialBackoff doubles the delay on each attempt. When false the
	// delay is constant.
	ExponentialBackoff bool

	// MaxDelay caps the computed delay. Zero disables the cap. A rate-limit
	// hint is honoured even above the cap.
	MaxDelay time.Duration

	// Jitter randomises the computed delay by ±Jitter (0 to 1).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		BaseDelay:          1 * time.Second,
		ExponentialBackoff: true,
	}
}

// Validate checks the retry settings.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0 (got %d)", ErrInvalidRetryConfig, c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("%w: base_delay must be >= 0 (got %v)", ErrInvalidRetryConfig, c.BaseDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must be >= 0 (got %v)", ErrInvalidRetryConfig, c.MaxDelay)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("%w: jitter must be within [0, 1] (got %v)", ErrInvalidRetryConfig, c.Jitter)
	}
	return nil
}

// RetryPolicy decides how long to wait before each retry.
type RetryPolicy struct {
	cfg RetryConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetryPolicy validates cfg and returns a policy.
func NewRetryPolicy(cfg RetryConfig) (*RetryPolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RetryPolicy{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}, nil
}

// Config returns the policy settings.
func (p *RetryPolicy) Config() RetryConfig {
	return p.cfg
}

// MaxRetries returns the attempt budget per call.
func (p *RetryPolicy) MaxRetries() int {
	return p.cfg.MaxRetries
}

// BackoffDelay returns the delay before retrying after the given failed
// attempt (1-based). Exponential: BaseDelay * 2^(attempt-1); linear:
// BaseDelay. If err carries a rate-limit hint the result is at least the
// hinted delay.
func (p *RetryPolicy) BackoffDelay(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.cfg.BaseDelay)
	if p.cfg.ExponentialBackoff {
		delay *= math.Pow(2, float64(attempt-1))
	}
	if p.cfg.MaxDelay > 0 && delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	if p.cfg.Jitter > 0 {
		p.mu.Lock()
		delay *= 1 + (p.rng.Float64()*2-1)*p.cfg.Jitter
		p.mu.Unlock()
	}
	if delay > float64(math.MaxInt64) {
		delay = float64(math.MaxInt64)
	}

	computed := time.Duration(delay)
	if hint, ok := RateLimitHint(err); ok && hint > computed {
		return hint
	}
	return computed
}

// retryAfterer is implemented by errors that know the upstream's
// requested delay, such as an HTTP error built from a Retry-After header.
type retryAfterer interface {
	RetryAfter() time.Duration
}

var (
	rateLimitMarker = regexp.MustCompile(`(?i)retry[-_ ]?after|too many requests|rate[-_ ]?limit(?:ed)?|\b429\b`)
	numberToken     = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
)

// RateLimitHint reports whether err signals rate limiting and the delay the
// upstream asked for. A typed RetryAfter() hint wins. Otherwise the message is
// scanned case-insensitively for a marker such as "Retry-After" or "429"; the
// first number after a marker, anywhere in the rest of the message, is read
// as seconds. A marker without a usable number yields DefaultRateLimitDelay.
func RateLimitHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var ra retryAfterer
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d, true
		}
	}

	msg := err.Error()
	markers := rateLimitMarker.FindAllStringIndex(msg, -1)
	if len(markers) == 0 {
		return 0, false
	}

	for _, loc := range markers {
		token := numberToken.FindString(msg[loc[1]:])
		if token == "" {
			continue
		}
		seconds, perr := strconv.ParseFloat(token, 64)
		if perr != nil || seconds < 0 || math.IsInf(seconds, 0) {
			continue
		}
		if seconds*float64(time.Second) >= float64(math.MaxInt64) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(seconds * float64(time.Second)), true
	}

	return DefaultRateLimitDelay, true
}
