// Package config loads the pagefetch CLI configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/pagefetch/pkg/logging"
	"github.com/Sternrassler/pagefetch/pkg/pagination"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

// Environment variables overriding the file.
const (
	EnvURL         = "PAGEFETCH_URL"
	EnvRedisURL    = "PAGEFETCH_REDIS_URL"
	EnvLogLevel    = "PAGEFETCH_LOG_LEVEL"
	EnvMetricsAddr = "PAGEFETCH_METRICS_ADDR"
)

// Config defines configuration for the pagefetch CLI.
type Config struct {
	Source      SourceConfig
	Pagination  pagination.Config
	RateLimit   RateLimitConfig
	Concurrency ConcurrencyConfig
	Partitions  []pagination.Partition
	Log         LogConfig
	MetricsAddr string
}

// SourceConfig describes the upstream HTTP endpoint.
type SourceConfig struct {
	URL          string
	Name         string
	RecordsField string
	Timeout      time.Duration
	Headers      map[string]string
}

// RateLimitConfig defines the request budget. With RedisURL set the window
// lives in Redis and is shared with every process using the same RedisKey.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	RedisURL    string
	RedisKey    string
}

// Limits returns the window limits.
func (r RateLimitConfig) Limits() ratelimit.Config {
	return ratelimit.Config{MaxRequests: r.MaxRequests, Window: r.Window}
}

// ConcurrencyConfig bounds partition parallelism.
type ConcurrencyConfig struct {
	MaxConcurrent int
	SharedLimiter bool
}

// LogConfig configures logging.
type LogConfig struct {
	Level  logging.LogLevel
	Pretty bool
}

// Default returns a Config with sensible defaults.
func Default() Config {
	limits := ratelimit.DefaultConfig()
	return Config{
		Source: SourceConfig{
			Name:    "pages",
			Timeout: 30 * time.Second,
		},
		Pagination: pagination.DefaultConfig(),
		RateLimit: RateLimitConfig{
			MaxRequests: limits.MaxRequests,
			Window:      limits.Window,
			RedisKey:    ratelimit.DefaultRedisKey,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrent: pagination.DefaultMaxConcurrent,
			SharedLimiter: true,
		},
		Log: LogConfig{Level: logging.LevelInfo},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Source      yamlSourceConfig      `yaml:"source"`
	Pagination  yamlPaginationConfig  `yaml:"pagination"`
	RateLimit   yamlRateLimitConfig   `yaml:"rate_limit"`
	Concurrency yamlConcurrencyConfig `yaml:"concurrency"`
	Partitions  []yamlPartition       `yaml:"partitions"`
	Log         yamlLogConfig         `yaml:"log"`
	MetricsAddr string                `yaml:"metrics_addr"`
}

type yamlSourceConfig struct {
	URL          string            `yaml:"url"`
	Name         string            `yaml:"name"`
	RecordsField string            `yaml:"records_field"`
	Timeout      string            `yaml:"timeout"`
	Headers      map[string]string `yaml:"headers"`
}

type yamlPaginationConfig struct {
	PageSize           *int   `yaml:"page_size"`
	Style              string `yaml:"style"`
	MaxRetries         *int   `yaml:"max_retries"`
	BaseDelay          string `yaml:"base_delay"`
	ExponentialBackoff *bool  `yaml:"exponential_backoff"`
	MaxDelay           string `yaml:"max_delay"`
	PostRequestDelay   string `yaml:"post_request_delay"`
	SupportsPagination *bool  `yaml:"supports_pagination"`
	MaxPages           *int   `yaml:"max_pages"`
}

type yamlRateLimitConfig struct {
	MaxRequests *int   `yaml:"max_requests"`
	Window      string `yaml:"window"`
	RedisURL    string `yaml:"redis_url"`
	RedisKey    string `yaml:"redis_key"`
}

type yamlConcurrencyConfig struct {
	MaxConcurrent *int  `yaml:"max_concurrent"`
	SharedLimiter *bool `yaml:"shared_limiter"`
}

type yamlPartition struct {
	Key    string         `yaml:"key"`
	Params map[string]any `yaml:"params"`
}

type yamlLogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadFromFile loads configuration from a YAML file over Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over Default().
func Parse(data []byte) (Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	// Source
	if yc.Source.URL != "" {
		cfg.Source.URL = yc.Source.URL
	}
	if yc.Source.Name != "" {
		cfg.Source.Name = yc.Source.Name
	}
	cfg.Source.RecordsField = yc.Source.RecordsField
	cfg.Source.Headers = yc.Source.Headers
	if err := parseDuration("source.timeout", yc.Source.Timeout, &cfg.Source.Timeout); err != nil {
		return Config{}, err
	}

	// Pagination
	p := yc.Pagination
	if p.PageSize != nil {
		cfg.Pagination.PageSize = *p.PageSize
	}
	if p.Style != "" {
		cfg.Pagination.Style = pagination.Style(p.Style)
	}
	if p.MaxRetries != nil {
		cfg.Pagination.MaxRetries = *p.MaxRetries
	}
	if p.ExponentialBackoff != nil {
		cfg.Pagination.ExponentialBackoff = *p.ExponentialBackoff
	}
	if p.SupportsPagination != nil {
		cfg.Pagination.SupportsPagination = *p.SupportsPagination
	}
	if p.MaxPages != nil {
		cfg.Pagination.MaxPages = *p.MaxPages
	}
	for _, d := range []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"pagination.base_delay", p.BaseDelay, &cfg.Pagination.BaseDelay},
		{"pagination.max_delay", p.MaxDelay, &cfg.Pagination.MaxDelay},
		{"pagination.post_request_delay", p.PostRequestDelay, &cfg.Pagination.PostRequestDelay},
		{"rate_limit.window", yc.RateLimit.Window, &cfg.RateLimit.Window},
	} {
		if err := parseDuration(d.field, d.value, d.dst); err != nil {
			return Config{}, err
		}
	}

	// Rate limit
	if yc.RateLimit.MaxRequests != nil {
		cfg.RateLimit.MaxRequests = *yc.RateLimit.MaxRequests
	}
	cfg.RateLimit.RedisURL = yc.RateLimit.RedisURL
	if yc.RateLimit.RedisKey != "" {
		cfg.RateLimit.RedisKey = yc.RateLimit.RedisKey
	}

	// Concurrency
	if yc.Concurrency.MaxConcurrent != nil {
		cfg.Concurrency.MaxConcurrent = *yc.Concurrency.MaxConcurrent
	}
	if yc.Concurrency.SharedLimiter != nil {
		cfg.Concurrency.SharedLimiter = *yc.Concurrency.SharedLimiter
	}

	for _, yp := range yc.Partitions {
		cfg.Partitions = append(cfg.Partitions, pagination.Partition{
			Key:    yp.Key,
			Params: pagination.Params(yp.Params),
		})
	}

	if yc.Log.Level != "" {
		level, err := logging.ParseLevel(yc.Log.Level)
		if err != nil {
			return Config{}, fmt.Errorf("parse log.level: %w", err)
		}
		cfg.Log.Level = level
	}
	cfg.Log.Pretty = yc.Log.Pretty
	cfg.MetricsAddr = yc.MetricsAddr

	return cfg, nil
}

func parseDuration(field, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv applies environment variable overrides.
// Environment variables use the PAGEFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvURL); v != "" {
		c.Source.URL = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.RateLimit.RedisURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		c.Log.Level = level
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	return nil
}

// Load reads the file (if path is not empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Source.URL == "" {
		return errors.New("source.url is required")
	}
	u, err := url.Parse(c.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL (got %q)", c.Source.URL)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be > 0 (got %v)", c.Source.Timeout)
	}
	if err := c.Pagination.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Limits().Validate(); err != nil {
		return err
	}
	if c.RateLimit.RedisURL != "" && c.RateLimit.RedisKey == "" {
		return errors.New("rate_limit.redis_key is required with rate_limit.redis_url")
	}
	if c.Concurrency.MaxConcurrent <= 0 {
		return fmt.Errorf("concurrency.max_concurrent must be > 0 (got %d)", c.Concurrency.MaxConcurrent)
	}
	seen := make(map[string]struct{}, len(c.Partitions))
	for _, p := range c.Partitions {
		if p.Key == "" {
			continue
		}
		if _, dup := seen[p.Key]; dup {
			return fmt.Errorf("duplicate partition key %q", p.Key)
		}
		seen[p.Key] = struct{}{}
	}
	return nil
}
