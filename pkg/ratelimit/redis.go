package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagefetch/pkg/clock"
)

// DefaultRedisKey is the sorted set holding the shared window.
const DefaultRedisKey = "pagefetch:rate_limit:window"

// reserveScript prunes, checks and records a grant atomically.
//
// KEYS[1] window key
// ARGV[1] now (µs), ARGV[2] window (µs), ARGV[3] limit, ARGV[4] member,
// ARGV[5] key TTL (ms)
//
// Returns 0 when granted, otherwise µs until the oldest grant expires.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, ARGV[5])
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window - (now - tonumber(oldest[2]))
if wait < 1 then
	wait = 1
end
return wait
`)

// RedisWindow is a sliding-window limiter whose log lives in Redis, so every
// executor pointing at the same key shares one budget. The time source is the
// caller's clock; processes sharing a key should run with synchronised clocks.
type RedisWindow struct {
	redis  *redis.Client
	key    string
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger
}

// NewRedisWindow creates a Redis-backed sliding window on key
// (DefaultRedisKey if empty). A nil clock means clock.Real.
func NewRedisWindow(redisClient *redis.Client, key string, cfg Config, clk clock.Clock, logger zerolog.Logger) (*RedisWindow, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultRedisKey
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &RedisWindow{
		redis:  redisClient,
		key:    key,
		cfg:    cfg,
		clock:  clk,
		logger: logger.With().Str("rate_limit_key", key).Logger(),
	}, nil
}

// Acquire blocks until the shared window has a free slot.
func (r *RedisWindow) Acquire(ctx context.Context) error {
	return acquireLoop(ctx, r.clock, BackendRedis, r.reserve)
}

func (r *RedisWindow) reserve(ctx context.Context) (time.Duration, error) {
	now := r.clock.Now()
	ttl := r.cfg.Window.Milliseconds() + 1

	waitMicros, err := reserveScript.Run(ctx, r.redis, []string{r.key},
		now.UnixMicro(),
		r.cfg.Window.Microseconds(),
		r.cfg.MaxRequests,
		uuid.NewString(),
		ttl,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve rate limit slot in redis: %w", err)
	}

	if waitMicros > 0 {
		r.logger.Debug().
			Int("limit", r.cfg.MaxRequests).
			Dur("wait", time.Duration(waitMicros)*time.Microsecond).
			Msg("Shared rate limit window full")
	}

	return time.Duration(waitMicros) * time.Microsecond, nil
}

// Reset deletes the shared window.
func (r *RedisWindow) Reset(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset rate limit window: %w", err)
	}
	r.logger.Info().Msg("Shared rate limit window reset")
	return nil
}

// State reads a snapshot of the shared window.
func (r *RedisWindow) State(ctx context.Context) (State, error) {
	now := r.clock.Now()
	minScore := "(" + strconv.FormatInt(now.Add(-r.cfg.Window).UnixMicro(), 10)

	entries, err := r.redis.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return State{}, fmt.Errorf("read rate limit window: %w", err)
	}

	state := State{
		Granted: len(entries),
		Limit:   r.cfg.MaxRequests,
		Window:  r.cfg.Window,
		At:      now,
	}
	if len(entries) > 0 {
		state.Oldest = time.UnixMicro(int64(entries[0].Score))
	}
	return state, nil
}
