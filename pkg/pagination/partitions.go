package pagination

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/pagefetch/pkg/logging"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// DefaultMaxConcurrent is the default number of partitions fetched at once.
const DefaultMaxConcurrent = 3

// Partition is one independent slice of a collection, such as a branch or a
// region. Params are merged over the fetcher's fixed parameters.
type Partition struct {
	Key    string
	Params Params
}

// PartitionFetcher fetches many partitions concurrently. Each partition is
// paged sequentially by its own Fetcher; a failing partition does not affect
// the others.
type PartitionFetcher[T any] struct {
	s       settings
	limiter ratelimit.Limiter // nil when every partition owns a window
	logger  zerolog.Logger
}

// NewPartitionFetcher validates cfg (after applying opts) and creates a
// partition fetcher.
func NewPartitionFetcher[T any](cfg Config, opts ...Option) (*PartitionFetcher[T], error) {
	s := newSettings(cfg, opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max_concurrent must be > 0 (got %d)", ErrInvalidConfig, s.maxConcurrent)
	}
	if s.limiter == nil {
		if err := s.rate.Validate(); err != nil {
			return nil, err
		}
	}

	var limiter ratelimit.Limiter
	switch {
	case s.limiter != nil:
		limiter = s.limiter
	case s.sharedLimiter:
		w, err := ratelimit.NewWindow(s.rate, s.clock)
		if err != nil {
			return nil, err
		}
		limiter = w
	}

	logger := logging.NewLogger("pagination")
	if s.logger != nil {
		logger = *s.logger
	}

	return &PartitionFetcher[T]{s: s, limiter: limiter, logger: logger}, nil
}

// MaxConcurrent returns the concurrency bound.
func (pf *PartitionFetcher[T]) MaxConcurrent() int {
	return pf.s.maxConcurrent
}

// SharedLimiter returns the limiter shared by all partitions, or nil when
// every partition gets its own window.
func (pf *PartitionFetcher[T]) SharedLimiter() ratelimit.Limiter {
	return pf.limiter
}

// FetchPartitions fetches every partition with at most MaxConcurrent running
// at once and returns the results keyed by partition key. A partition whose
// worker panics is logged and left out of the map. The error is non-nil only
// for invalid input detected before any call, such as duplicate keys.
// Partitions with an empty key are reported as "partition-<index>".
func (pf *PartitionFetcher[T]) FetchPartitions(ctx context.Context, fn PageFunc[T], partitions []Partition) (map[string]Result[T], error) {
	keys := make([]string, len(partitions))
	seen := make(map[string]struct{}, len(partitions))
	for i, p := range partitions {
		key := p.Key
		if key == "" {
			key = fmt.Sprintf("partition-%d", i)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate partition key %q", ErrInvalidConfig, key)
		}
		seen[key] = struct{}{}
		keys[i] = key
	}

	fetchers := make([]*Fetcher[T], len(partitions))
	for i, key := range keys {
		limiter := pf.limiter
		if limiter == nil {
			w, err := ratelimit.NewWindow(pf.s.rate, pf.s.clock)
			if err != nil {
				return nil, err
			}
			limiter = w
		}
		f, err := newFetcher[T](pf.s, limiter, pf.s.name+"/"+key, key)
		if err != nil {
			return nil, err
		}
		fetchers[i] = f
	}

	pf.logger.Info().
		Int("partitions", len(partitions)).
		Int("max_concurrent", pf.s.maxConcurrent).
		Bool("shared_limiter", pf.limiter != nil).
		Msg("Starting partition fetch")

	var (
		mu        sync.Mutex
		results   = make(map[string]Result[T], len(partitions))
		completed int
	)
	record := func(key string, res Result[T]) {
		mu.Lock()
		defer mu.Unlock()
		results[key] = res
		completed++

		event := pf.logger.Info()
		if !res.Success {
			event = pf.logger.Error().Err(res.Err)
		}
		event.
			Str("partition", key).
			Bool("success", res.Success).
			Int("records", len(res.Data)).
			Int("requests", res.Requests).
			Int("retries", res.Retries).
			Int("completed", completed).
			Int("total", len(partitions)).
			Msg("Partition complete")
	}

	sem := semaphore.NewWeighted(int64(pf.s.maxConcurrent))
	var wg sync.WaitGroup

	for i := range partitions {
		key, params, fetcher := keys[i], partitions[i].Params, fetchers[i]

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				record(key, Result[T]{Partition: key, Err: fmt.Errorf("%s: wait for worker: %w", key, err)})
				return
			}
			defer sem.Release(1)

			partitionsInFlight.Inc()
			defer partitionsInFlight.Dec()

			defer func() {
				if r := recover(); r != nil {
					pf.logger.Error().
						Str("partition", key).
						Interface("panic", r).
						Msg("Partition worker panicked, omitting result")
				}
			}()

			record(key, fetcher.FetchAll(ctx, fn, params))
		}()
	}

	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	pf.logger.Info().
		Int("partitions", len(partitions)).
		Int("succeeded", succeeded).
		Int("failed", len(results)-succeeded).
		Int("omitted", len(partitions)-len(results)).
		Msg("Partition fetch complete")

	return results, nil
}
