// Package client executes single upstream calls under a rate limit with
// retries and backoff.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/pagefetch/pkg/clock"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// Prometheus metrics for call execution and retries.
var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_calls_total",
		Help: "Total upstream call attempts by outcome",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagefetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// outcomeLimiterError labels attempts that never ran because the limiter
// backend failed.
const outcomeLimiterError = "limiter_error"

// acquireOutcome labels a failed Acquire.
func acquireOutcome(err error) string {
	if Classify(err) == ErrorClassCancelled {
		return string(ErrorClassCancelled)
	}
	return outcomeLimiterError
}

// CallFunc is one attempt of a logical call.
type CallFunc func(ctx context.Context) error

// CallStats counts what one logical call consumed.
type CallStats struct {
	// Requests is the number of attempts, each of which acquired one slot.
	Requests int

	// Retries is the number of attempts after the first.
	Retries int
}

// Config holds the executor configuration.
type Config struct {
	// Limiter gates every attempt (required). Share one limiter between
	// executors to enforce a global budget.
	Limiter ratelimit.Limiter

	// Retry configures attempts and backoff.
	Retry RetryConfig

	// Clock drives backoff sleeps (default clock.Real).
	Clock clock.Clock

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Executor runs calls under a rate limiter with retries.
type Executor struct {
	limiter ratelimit.Limiter
	policy  *RetryPolicy
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates a new executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	policy, err := NewRetryPolicy(cfg.Retry)
	if err != nil {
		return nil, err
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	logger := log.With().Str("component", "executor").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Executor{
		limiter: cfg.Limiter,
		policy:  policy,
		clock:   clk,
		logger:  logger,
	}, nil
}

// Limiter returns the limiter gating this executor.
func (e *Executor) Limiter() ratelimit.Limiter {
	return e.limiter
}

// Policy returns the retry policy.
func (e *Executor) Policy() *RetryPolicy {
	return e.policy
}

// Execute runs fn until it succeeds, fails permanently, or has been
// attempted MaxRetries times. Every attempt first acquires a rate limit slot.
// After exhaustion the returned *RetryError unwraps to the last error.
func (e *Executor) Execute(ctx context.Context, label string, fn CallFunc) (CallStats, error) {
	var stats CallStats
	attempt := 0

	for {
		if err := e.limiter.Acquire(ctx); err != nil {
			callsTotal.WithLabelValues(acquireOutcome(err)).Inc()
			return stats, fmt.Errorf("%s: acquire rate limit: %w", label, err)
		}

		stats.Requests++
		if attempt > 0 {
			stats.Retries++
		}
		start := time.Now()
		err := fn(ctx)
		if err == nil {
			callsTotal.WithLabelValues("success").Inc()
			if attempt > 0 {
				e.logger.Info().
					Str("label", label).
					Int("attempt", attempt+1).
					Msg("Call succeeded after retry")
			} else {
				e.logger.Debug().
					Str("label", label).
					Dur("duration", time.Since(start)).
					Msg("Call succeeded")
			}
			return stats, nil
		}

		attempt++
		errorClass := Classify(err)
		callsTotal.WithLabelValues(string(errorClass)).Inc()

		if !shouldRetry(errorClass) {
			e.logger.Warn().
				Err(err).
				Str("label", label).
				Str("error_class", string(errorClass)).
				Msg("Call failed, not retrying")
			return stats, fmt.Errorf("%s: %w", label, err)
		}

		if attempt >= e.policy.MaxRetries() {
			retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			e.logger.Warn().
				Err(err).
				Str("label", label).
				Str("error_class", string(errorClass)).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			return stats, &RetryError{Label: label, Attempts: attempt, Err: err}
		}

		backoff := e.policy.BackoffDelay(attempt, err)
		retriesTotal.WithLabelValues(string(errorClass)).Inc()
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(backoff.Seconds())

		e.logger.Warn().
			Err(err).
			Str("label", label).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying call after backoff")

		if err := e.clock.Sleep(ctx, backoff); err != nil {
			e.logger.Warn().
				Str("label", label).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return stats, fmt.Errorf("%s: retry backoff: %w", label, err)
		}
	}
}
