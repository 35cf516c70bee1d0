package pagination

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagefetch/pkg/clock"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// DefaultName labels calls of fetchers constructed without WithName.
const DefaultName = "pages"

// Option configures a Fetcher, a PartitionFetcher or FetchAll.
type Option func(*settings)

type settings struct {
	config        Config
	name          string
	params        Params
	limiter       ratelimit.Limiter
	rate          ratelimit.Config
	clock         clock.Clock
	logger        *zerolog.Logger
	maxConcurrent int
	sharedLimiter bool
}

func newSettings(cfg Config, opts []Option) settings {
	s := settings{
		config:        cfg,
		name:          DefaultName,
		rate:          ratelimit.DefaultConfig(),
		maxConcurrent: DefaultMaxConcurrent,
		sharedLimiter: true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	return s
}

// WithName sets the label prefix used in logs and errors.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithParams sets fixed parameters passed to every page call. Parameters
// given to FetchAll or a Partition are merged on top.
func WithParams(params Params) Option {
	return func(s *settings) {
		s.params = params
	}
}

// WithLimiter uses an existing limiter, for example a RedisWindow or a Window
// shared with other fetchers. A PartitionFetcher always shares it.
func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(s *settings) {
		s.limiter = limiter
	}
}

// WithRateLimit sets the sliding window used when no limiter is injected.
func WithRateLimit(maxRequests int, window time.Duration) Option {
	return func(s *settings) {
		s.rate = ratelimit.Config{MaxRequests: maxRequests, Window: window}
	}
}

// WithClock sets the clock driving every wait (default clock.Real).
func WithClock(clk clock.Clock) Option {
	return func(s *settings) {
		s.clock = clk
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = &logger
	}
}

// WithMaxConcurrent bounds the number of partitions fetched at once.
func WithMaxConcurrent(n int) Option {
	return func(s *settings) {
		s.maxConcurrent = n
	}
}

// WithSharedLimiter selects one global limiter for all partitions (true,
// the default) or one limiter per partition.
func WithSharedLimiter(shared bool) Option {
	return func(s *settings) {
		s.sharedLimiter = shared
	}
}

// WithPageSize sets Config.PageSize.
func WithPageSize(size int) Option {
	return func(s *settings) {
		s.config.PageSize = size
	}
}

// WithStyle sets Config.Style.
func WithStyle(style Style) Option {
	return func(s *settings) {
		s.config.Style = style
	}
}

// WithMaxRetries sets Config.MaxRetries.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		s.config.MaxRetries = n
	}
}

// WithBaseDelay sets Config.BaseDelay.
func WithBaseDelay(d time.Duration) Option {
	return func(s *settings) {
		s.config.BaseDelay = d
	}
}

// WithExponentialBackoff sets Config.ExponentialBackoff.
func WithExponentialBackoff(enabled bool) Option {
	return func(s *settings) {
		s.config.ExponentialBackoff = enabled
	}
}

// WithMaxDelay sets Config.MaxDelay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		s.config.MaxDelay = d
	}
}

// WithPostRequestDelay sets Config.PostRequestDelay.
func WithPostRequestDelay(d time.Duration) Option {
	return func(s *settings) {
		s.config.PostRequestDelay = d
	}
}

// WithMaxPages sets Config.MaxPages.
func WithMaxPages(n int) Option {
	return func(s *settings) {
		s.config.MaxPages = n
	}
}

// WithoutPagination clears Config.SupportsPagination.
func WithoutPagination() Option {
	return func(s *settings) {
		s.config.SupportsPagination = false
	}
}
