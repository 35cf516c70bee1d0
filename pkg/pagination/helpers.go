package pagination

import (
	"context"
	"time"

	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// NewRateLimitedFetcher creates a fetcher limited to maxRequestsPerWindow
// calls per minute with the given retry settings. Further opts override the
// defaults.
func NewRateLimitedFetcher[T any](maxRequestsPerWindow, maxRetries int, baseDelay time.Duration, opts ...Option) (*Fetcher[T], error) {
	return NewFetcher[T](DefaultConfig(), rateLimitedOptions(maxRequestsPerWindow, maxRetries, baseDelay, opts)...)
}

// NewRateLimitedPartitionFetcher creates a partition fetcher with one shared
// window of maxRequestsPerWindow calls per minute and at most maxConcurrent
// partitions in flight.
func NewRateLimitedPartitionFetcher[T any](maxRequestsPerWindow, maxRetries int, baseDelay time.Duration, maxConcurrent int, opts ...Option) (*PartitionFetcher[T], error) {
	all := rateLimitedOptions(maxRequestsPerWindow, maxRetries, baseDelay, nil)
	all = append(all, WithMaxConcurrent(maxConcurrent))
	all = append(all, opts...)
	return NewPartitionFetcher[T](DefaultConfig(), all...)
}

func rateLimitedOptions(maxRequests, maxRetries int, baseDelay time.Duration, extra []Option) []Option {
	opts := []Option{
		WithRateLimit(maxRequests, ratelimit.DefaultConfig().Window),
		WithMaxRetries(maxRetries),
		WithBaseDelay(baseDelay),
	}
	return append(opts, extra...)
}

// FetchAll fetches a whole collection with a one-off fetcher configured by
// opts and returns the records. It returns an error only if no page was
// fetched at all; after a later failure the partial records are returned and
// a warning is logged.
func FetchAll[T any](ctx context.Context, fn PageFunc[T], opts ...Option) ([]T, error) {
	f, err := NewFetcher[T](DefaultConfig(), opts...)
	if err != nil {
		return nil, err
	}

	result := f.FetchAll(ctx, fn, nil)
	if result.Success {
		return result.Data, nil
	}
	if result.Pages == 0 {
		return nil, result.Err
	}

	f.logger.Warn().
		Err(result.Err).
		Int("pages", result.Pages).
		Int("records", len(result.Data)).
		Msg("Returning partial results")

	return result.Data, nil
}
