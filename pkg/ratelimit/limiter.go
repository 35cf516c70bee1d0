// Package ratelimit bounds the request rate towards the upstream API.
//
// A limiter grants at most MaxRequests requests within any trailing Window
// (a sliding-window log). Window keeps the log in memory and may be shared by
// reference between concurrent fetchers to enforce one global budget.
// RedisWindow keeps the log in a Redis sorted set so that several executors,
// possibly in different processes, draw from the same budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/pagefetch/pkg/clock"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitAcquiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_ratelimit_acquired_total",
		Help: "Total number of request slots granted by backend",
	}, []string{"backend"})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_ratelimit_waits_total",
		Help: "Total number of times a caller had to wait for a free slot",
	}, []string{"backend"})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagefetch_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a free slot",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"backend"})
)

// Backend labels used in metrics and logs.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrInvalidConfig is returned when a limiter is constructed with invalid limits.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Limiter gates outgoing requests.
type Limiter interface {
	// Acquire blocks until one more request may be sent, or ctx is done.
	Acquire(ctx context.Context) error

	// Reset forgets every granted request.
	Reset(ctx context.Context) error
}

// Config holds the sliding window limits.
type Config struct {
	// MaxRequests is the number of requests allowed within Window.
	MaxRequests int

	// Window is the length of the trailing time window.
	Window time.Duration
}

// DefaultConfig returns 100 requests per minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 100,
		Window:      time.Minute,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max_requests must be > 0 (got %d)", ErrInvalidConfig, c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0 (got %v)", ErrInvalidConfig, c.Window)
	}
	return nil
}

// reserveFunc atomically prunes, checks and records one grant at the current
// time. It returns 0 when the slot was granted, otherwise how long to wait
// before the oldest grant leaves the window.
type reserveFunc func(ctx context.Context) (time.Duration, error)

// acquireLoop is the acquire algorithm shared by every backend: reserve, and
// while the window is full, sleep until the oldest grant expires.
func acquireLoop(ctx context.Context, clk clock.Clock, backend string, reserve reserveFunc) error {
	var waited time.Duration
	for {
		wait, err := reserve(ctx)
		if err != nil {
			return err
		}
		if wait <= 0 {
			rateLimitAcquiredTotal.WithLabelValues(backend).Inc()
			if waited > 0 {
				rateLimitWaitSeconds.WithLabelValues(backend).Observe(waited.Seconds())
			}
			return nil
		}

		rateLimitWaitsTotal.WithLabelValues(backend).Inc()
		if err := clk.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("wait for rate limit slot: %w", err)
		}
		waited += wait
	}
}
