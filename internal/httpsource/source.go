// Package httpsource implements a page function over a JSON HTTP endpoint.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Sternrassler/pagefetch/pkg/client"
	"github.com/Sternrassler/pagefetch/pkg/logging"
	"github.com/Sternrassler/pagefetch/pkg/pagination"
)

// Prometheus metrics for upstream HTTP calls.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefetch_http_requests_total",
		Help: "Total HTTP requests to the upstream by status code",
	}, []string{"status"})

	httpRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagefetch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests to the upstream",
		Buckets: prometheus.DefBuckets,
	})
)

// maxErrorBody limits how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Config configures a Source.
type Config struct {
	// URL is the collection endpoint. Pagination parameters are added to
	// its query.
	URL string

	// RecordsField names the array inside an object response. Without it an
	// object response is a single record.
	RecordsField string

	// Timeout bounds one HTTP request (default 30s).
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Breaker configures the circuit breaker.
	Breaker BreakerConfig

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// BreakerConfig configures the circuit breaker guarding the upstream.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker (default 5).
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open (default 30s).
	OpenTimeout time.Duration
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.retryAfter > 0 {
		msg += fmt.Sprintf(" (retry-after %gs)", e.retryAfter.Seconds())
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// RetryAfter returns the delay requested by the Retry-After header.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Source fetches pages of JSON records over HTTP.
type Source struct {
	base         *url.URL
	recordsField string
	headers      map[string]string
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker
	logger       zerolog.Logger
}

// New creates a source for cfg.URL.
func New(cfg Config) (*Source, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("source url must be http(s): %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := logging.NewLogger("httpsource")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := cfg.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        base.Host,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			class := client.Classify(err)
			return class == client.ErrorClassPermanent || class == client.ErrorClassCancelled
		},
	})

	return &Source{
		base:         base,
		recordsField: cfg.RecordsField,
		headers:      cfg.Headers,
		client:       httpClient,
		breaker:      breaker,
		logger:       logger,
	}, nil
}

// Fetch requests one page. It satisfies pagination.PageFunc.
// 429 and 5xx responses are retryable; other 4xx responses are permanent.
func (s *Source) Fetch(ctx context.Context, params pagination.Params) (pagination.Page[json.RawMessage], error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.do(ctx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pagination.Page[json.RawMessage]{}, fmt.Errorf("upstream %s unavailable: %w", s.base.Host, err)
		}
		return pagination.Page[json.RawMessage]{}, err
	}
	return out.(pagination.Page[json.RawMessage]), nil
}

// BreakerState returns the circuit breaker state.
func (s *Source) BreakerState() gobreaker.State {
	return s.breaker.State()
}

func (s *Source) do(ctx context.Context, params pagination.Params) (pagination.Page[json.RawMessage], error) {
	var empty pagination.Page[json.RawMessage]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.requestURL(params), nil)
	if err != nil {
		return empty, client.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	httpRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		httpRequestsTotal.WithLabelValues("error").Inc()
		return empty, fmt.Errorf("request %s: %w", s.base.Path, err)
	}
	defer resp.Body.Close()

	httpRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return empty, statusErr
		}
		return empty, client.Permanent(statusErr)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("read response: %w", err)
	}

	s.logger.Debug().
		Str("url", req.URL.String()).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Upstream response")

	return decodePage(data, s.recordsField)
}

// requestURL adds params to the base URL query.
func (s *Source) requestURL(params pagination.Params) string {
	u := *s.base
	query := u.Query()
	for k, v := range params {
		switch vals := v.(type) {
		case []any:
			query.Del(k)
			for _, item := range vals {
				query.Add(k, fmt.Sprint(item))
			}
		case []string:
			query[k] = append([]string(nil), vals...)
		default:
			query.Set(k, fmt.Sprint(v))
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// decodePage turns a response body into a page. An array is a list; an
// object is a single record unless recordsField names an array inside it.
func decodePage(data []byte, recordsField string) (pagination.Page[json.RawMessage], error) {
	var empty pagination.Page[json.RawMessage]

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return pagination.List([]json.RawMessage{}), nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return empty, client.Permanent(fmt.Errorf("decode response array: %w", err))
		}
		return pagination.List(items), nil
	case '{':
		if recordsField == "" {
			return pagination.Single(json.RawMessage(trimmed)), nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return empty, client.Permanent(fmt.Errorf("decode response object: %w", err))
		}
		field, ok := obj[recordsField]
		if !ok {
			return empty, client.Permanent(fmt.Errorf("response has no field %q", recordsField))
		}
		return decodePage(field, "")
	default:
		if !json.Valid(trimmed) {
			return empty, client.Permanent(errors.New("response is not valid JSON"))
		}
		if bytes.Equal(trimmed, []byte("null")) {
			return pagination.List([]json.RawMessage{}), nil
		}
		return pagination.Single(json.RawMessage(trimmed)), nil
	}
}

// parseRetryAfter reads delta seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
