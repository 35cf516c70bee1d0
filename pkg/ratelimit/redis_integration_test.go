//go:build integration

package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/pagefetch/pkg/clock"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisWindow_Integration_ConcurrentAcquire(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	cfg := Config{MaxRequests: 5, Window: 200 * time.Millisecond}
	ctx := context.Background()

	// Two limiters on one key behave like two processes sharing a budget.
	a, err := NewRedisWindow(redisClient, "it:concurrent", cfg, clock.Real{}, logger)
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}
	b, err := NewRedisWindow(redisClient, "it:concurrent", cfg, clock.Real{}, logger)
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []time.Time
	)
	for i := 0; i < 15; i++ {
		limiter := a
		if i%2 == 1 {
			limiter = b
		}
		wg.Add(1)
		go func(l *RedisWindow) {
			defer wg.Done()
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			granted = append(granted, time.Now())
			mu.Unlock()
		}(limiter)
	}
	wg.Wait()

	if len(granted) != 15 {
		t.Fatalf("granted = %d, want 15", len(granted))
	}

	// 15 requests at 5 per 200ms need at least two full windows.
	first, last := granted[0], granted[0]
	for _, ts := range granted {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if span := last.Sub(first); span < 350*time.Millisecond {
		t.Errorf("grants spanned %v, want >= ~400ms", span)
	}
}

func TestRedisWindow_Integration_ResetAndState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	w, err := NewRedisWindow(redisClient, "it:state", Config{MaxRequests: 3, Window: time.Minute}, clock.Real{}, logger)
	if err != nil {
		t.Fatalf("NewRedisWindow() error = %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := w.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	state, err := w.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Granted != 2 {
		t.Errorf("Granted = %d, want 2", state.Granted)
	}
	if state.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", state.Remaining())
	}

	if err := w.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	state, err = w.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.Granted != 0 {
		t.Errorf("Granted after Reset = %d, want 0", state.Granted)
	}
}
