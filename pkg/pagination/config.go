package pagination

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/pagefetch/pkg/client"
)

// Style selects how page positions are expressed to the upstream.
type Style string

const (
	// StyleOffsetLimit sends take (page size) and skip (records to skip).
	StyleOffsetLimit Style = "offset_limit"

	// StylePageNumber sends page (0-based index) and page_size.
	StylePageNumber Style = "page_number"
)

// ErrInvalidConfig is returned when a fetcher is constructed with an invalid
// configuration.
var ErrInvalidConfig = errors.New("invalid pagination config")

// Config holds pagination and retry settings for one fetcher. It is copied
// into the fetcher at construction.
type Config struct {
	// PageSize is the number of records requested per page (> 0).
	PageSize int

	// Style selects offset/limit or page number parameters.
	Style Style

	// MaxRetries is the attempt budget per page.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// ExponentialBackoff doubles the backoff on each attempt.
	ExponentialBackoff bool

	// MaxDelay caps the computed backoff (0 = uncapped).
	MaxDelay time.Duration

	// PostRequestDelay is a politeness pause after every successful page
	// that is not the last one.
	PostRequestDelay time.Duration

	// SupportsPagination is false for endpoints that return everything in a
	// single response. Exactly one call is made then.
	SupportsPagination bool

	// MaxPages stops the fetch after that many pages and marks the result
	// truncated (0 = unlimited).
	MaxPages int
}

// DefaultConfig returns the default pagination configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:           100,
		Style:              StyleOffsetLimit,
		MaxRetries:         3,
		BaseDelay:          1 * time.Second,
		ExponentialBackoff: true,
		SupportsPagination: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("%w: page_size must be > 0 (got %d)", ErrInvalidConfig, c.PageSize)
	}
	switch c.Style {
	case StyleOffsetLimit, StylePageNumber:
	default:
		return fmt.Errorf("%w: unknown pagination style %q", ErrInvalidConfig, c.Style)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0 (got %d)", ErrInvalidConfig, c.MaxRetries)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("%w: base_delay must be >= 0 (got %v)", ErrInvalidConfig, c.BaseDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must be >= 0 (got %v)", ErrInvalidConfig, c.MaxDelay)
	}
	if c.PostRequestDelay < 0 {
		return fmt.Errorf("%w: post_request_delay must be >= 0 (got %v)", ErrInvalidConfig, c.PostRequestDelay)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max_pages must be >= 0 (got %d)", ErrInvalidConfig, c.MaxPages)
	}
	return nil
}

// RetryConfig maps the retry fields onto a client.RetryConfig.
func (c Config) RetryConfig() client.RetryConfig {
	return client.RetryConfig{
		MaxRetries:         c.MaxRetries,
		BaseDelay:          c.BaseDelay,
		ExponentialBackoff: c.ExponentialBackoff,
		MaxDelay:           c.MaxDelay,
	}
}
