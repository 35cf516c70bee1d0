package pagination

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagefetch/pkg/client"
	"github.com/Sternrassler/pagefetch/pkg/clock"
	"github.com/Sternrassler/pagefetch/pkg/logging"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// Fetcher fetches every page of one collection, sequentially.
type Fetcher[T any] struct {
	cfg       Config
	name      string
	partition string
	params    Params
	executor  *client.Executor
	clock     clock.Clock
	logger    zerolog.Logger
}

// NewFetcher validates cfg (after applying opts) and creates a fetcher.
// Without WithLimiter the fetcher owns a fresh in-memory Window.
func NewFetcher[T any](cfg Config, opts ...Option) (*Fetcher[T], error) {
	s := newSettings(cfg, opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	limiter := s.limiter
	if limiter == nil {
		w, err := ratelimit.NewWindow(s.rate, s.clock)
		if err != nil {
			return nil, err
		}
		limiter = w
	}

	return newFetcher[T](s, limiter, s.name, "")
}

// newFetcher builds a fetcher from validated settings.
func newFetcher[T any](s settings, limiter ratelimit.Limiter, name, partition string) (*Fetcher[T], error) {
	logger := logging.NewLogger("pagination")
	if s.logger != nil {
		logger = *s.logger
	}
	if partition != "" {
		logger = logger.With().Str("partition", partition).Logger()
	}

	executor, err := client.New(client.Config{
		Limiter: limiter,
		Retry:   s.config.RetryConfig(),
		Clock:   s.clock,
		Logger:  &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &Fetcher[T]{
		cfg:       s.config,
		name:      name,
		partition: partition,
		params:    s.params,
		executor:  executor,
		clock:     s.clock,
		logger:    logger,
	}, nil
}

// Config returns the fetcher configuration.
func (f *Fetcher[T]) Config() Config {
	return f.cfg
}

// Limiter returns the limiter gating this fetcher.
func (f *Fetcher[T]) Limiter() ratelimit.Limiter {
	return f.executor.Limiter()
}

// FetchAll calls fn page after page until the collection is exhausted and
// returns every record in call order. Errors never escape: a failed fetch
// returns Success=false with the error and the records collected so far.
func (f *Fetcher[T]) FetchAll(ctx context.Context, fn PageFunc[T], params Params) Result[T] {
	start := f.clock.Now()
	logger := f.logger.With().Str("run_id", uuid.NewString()).Logger()
	fixed := f.params.Merge(params)

	result := Result[T]{Partition: f.partition}

	for index := 0; ; index++ {
		callParams := pageParams(f.cfg, fixed, index)
		label := fmt.Sprintf("%s[page=%d]", f.name, index)

		var page Page[T]
		stats, err := f.executor.Execute(ctx, label, func(ctx context.Context) error {
			p, err := fn(ctx, callParams)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		result.Requests += stats.Requests
		result.Retries += stats.Retries
		if err != nil {
			result.Err = err
			break
		}

		result.Pages++
		result.Data = append(result.Data, page.Items()...)
		pagesTotal.Inc()
		recordsTotal.Add(float64(page.Len()))

		logger.Debug().
			Str("label", label).
			Int("page", index).
			Int("records", page.Len()).
			Msg("Page fetched")

		if !f.cfg.SupportsPagination || page.IsSingle() || page.Len() == 0 || page.Len() < f.cfg.PageSize {
			break
		}
		if f.cfg.MaxPages > 0 && result.Pages >= f.cfg.MaxPages {
			result.Truncated = true
			break
		}

		if f.cfg.PostRequestDelay > 0 {
			if err := f.clock.Sleep(ctx, f.cfg.PostRequestDelay); err != nil {
				result.Err = fmt.Errorf("%s: post-request delay: %w", label, err)
				break
			}
		}
	}

	result.Success = result.Err == nil
	result.Duration = f.clock.Now().Sub(start)
	fetchDurationSeconds.Observe(result.Duration.Seconds())

	if result.Success {
		fetchesTotal.WithLabelValues(statusSuccess).Inc()
		logger.Info().
			Int("pages", result.Pages).
			Int("records", len(result.Data)).
			Int("requests", result.Requests).
			Int("retries", result.Retries).
			Bool("truncated", result.Truncated).
			Dur("duration", result.Duration).
			Msg("Fetch complete")
	} else {
		fetchesTotal.WithLabelValues(statusFailed).Inc()
		logger.Warn().
			Err(result.Err).
			Int("pages", result.Pages).
			Int("records", len(result.Data)).
			Int("requests", result.Requests).
			Int("retries", result.Retries).
			Msg("Fetch failed, returning partial results")
	}

	return result
}
