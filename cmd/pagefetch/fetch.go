package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/pagefetch/internal/config"
	"github.com/Sternrassler/pagefetch/internal/httpsource"
	"github.com/Sternrassler/pagefetch/pkg/logging"
	"github.com/Sternrassler/pagefetch/pkg/metrics"
	"github.com/Sternrassler/pagefetch/pkg/pagination"
	"github.com/Sternrassler/pagefetch/pkg/ratelimit"
)

type fetchFlags struct {
	output      string
	metricsAddr string
	summaryOnly bool
}

// partitionReport is the JSON report entry of one partition.
type partitionReport struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Requests   int               `json:"requests"`
	Retries    int               `json:"retries"`
	Pages      int               `json:"pages"`
	Records    int               `json:"records"`
	Truncated  bool              `json:"truncated,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Data       []json.RawMessage `json:"data,omitempty"`
}

// report is the document written by fetch.
type report struct {
	Source     string                     `json:"source"`
	StartedAt  time.Time                  `json:"started_at"`
	Partitions map[string]partitionReport `json:"partitions"`
	Omitted    []string                   `json:"omitted,omitempty"`
}

func newFetchCmd(root *rootFlags) *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every configured partition",
		Long: `Fetch every page of every configured partition and write a JSON report
with the records and per-partition statistics.

The command fails when the configuration is invalid or when every partition
failed. Partial failures are reported in the output.

Examples:
  # Write the report to stdout
  pagefetch fetch --config pagefetch.yaml

  # Write to a file and serve metrics on :9090
  pagefetch fetch -c pagefetch.yaml -o report.json --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFetch(ctx, cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "report file (default stdout)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&flags.summaryOnly, "summary-only", false, "omit records from the report")
	return cmd
}

func runFetch(ctx context.Context, cmd *cobra.Command, root *rootFlags, flags *fetchFlags) error {
	cfg, err := config.Load(root.cfgFile)
	if err != nil {
		return err
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}

	logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: cmd.ErrOrStderr()})
	logger := logging.NewLogger("cli")

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	opts := []pagination.Option{
		pagination.WithName(cfg.Source.Name),
		pagination.WithMaxConcurrent(cfg.Concurrency.MaxConcurrent),
	}

	limiter, closeLimiter, err := newSharedLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()
	if limiter != nil {
		opts = append(opts, pagination.WithLimiter(limiter))
	} else {
		opts = append(opts,
			pagination.WithRateLimit(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
			pagination.WithSharedLimiter(cfg.Concurrency.SharedLimiter))
	}

	src, err := httpsource.New(httpsource.Config{
		URL:          cfg.Source.URL,
		RecordsField: cfg.Source.RecordsField,
		Timeout:      cfg.Source.Timeout,
		Headers:      cfg.Source.Headers,
	})
	if err != nil {
		return err
	}

	pf, err := pagination.NewPartitionFetcher[json.RawMessage](cfg.Pagination, opts...)
	if err != nil {
		return err
	}

	partitions := partitionsOf(cfg)
	started := time.Now().UTC()

	logger.Info().
		Str("source", cfg.Source.URL).
		Int("partitions", len(partitions)).
		Str("limiter", limiterBackend(cfg)).
		Msg("Starting fetch")

	results, err := pf.FetchPartitions(ctx, src.Fetch, partitions)
	if err != nil {
		return err
	}

	rep := buildReport(cfg.Source.URL, started, partitions, results, flags.summaryOnly)
	if err := writeReport(cmd.OutOrStdout(), flags.output, rep); err != nil {
		return err
	}

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	if len(partitions) > 0 && succeeded == 0 {
		return fmt.Errorf("all %d partitions failed", len(partitions))
	}
	return nil
}

// partitionsOf returns the configured partitions, or one partition named
// after the source when none are configured.
func partitionsOf(cfg config.Config) []pagination.Partition {
	if len(cfg.Partitions) > 0 {
		return cfg.Partitions
	}
	return []pagination.Partition{{Key: cfg.Source.Name}}
}

func limiterBackend(cfg config.Config) string {
	if cfg.RateLimit.RedisURL != "" {
		return ratelimit.BackendRedis
	}
	return ratelimit.BackendMemory
}

// newSharedLimiter connects the Redis window when configured. It returns a
// nil limiter for the in-memory backend.
func newSharedLimiter(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit.RedisURL == "" {
		return nil, func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", redisOpts.Addr).Str("key", cfg.RateLimit.RedisKey).Msg("Connected to Redis")

	window, err := ratelimit.NewRedisWindow(redisClient, cfg.RateLimit.RedisKey, cfg.RateLimit.Limits(), nil, logger)
	if err != nil {
		redisClient.Close()
		return nil, nil, err
	}
	return window, func() { redisClient.Close() }, nil
}

// serveMetrics starts the metrics server and returns its shutdown function.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func buildReport(source string, started time.Time, partitions []pagination.Partition, results map[string]pagination.Result[json.RawMessage], summaryOnly bool) report {
	rep := report{
		Source:     source,
		StartedAt:  started,
		Partitions: make(map[string]partitionReport, len(results)),
	}
	for key, res := range results {
		entry := partitionReport{
			Success:    res.Success,
			Error:      res.ErrorMessage(),
			Requests:   res.Requests,
			Retries:    res.Retries,
			Pages:      res.Pages,
			Records:    res.Records(),
			Truncated:  res.Truncated,
			DurationMS: res.Duration.Milliseconds(),
		}
		if !summaryOnly {
			entry.Data = res.Data
		}
		rep.Partitions[key] = entry
	}
	for i, p := range partitions {
		key := p.Key
		if key == "" {
			key = fmt.Sprintf("partition-%d", i)
		}
		if _, ok := results[key]; !ok {
			rep.Omitted = append(rep.Omitted, key)
		}
	}
	sort.Strings(rep.Omitted)
	return rep
}

func writeReport(stdout io.Writer, path string, rep report) error {
	out := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
