// Package pagination fetches complete paginated collections from a
// rate-limited upstream, one partition at a time or many concurrently.
//
// The upstream is reached through an injected PageFunc. The package computes
// pagination parameters (take/skip or page/page_size), merges them over the
// caller's fixed parameters and drives the page function until a short or
// empty page signals the end. Every call goes through a client.Executor, so
// each attempt draws one slot from a ratelimit.Limiter and transient failures
// are retried with backoff.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.PageSize = 50
//	fetcher, err := pagination.NewFetcher[Order](cfg, pagination.WithName("orders"))
//	if err != nil {
//		return err
//	}
//	result := fetcher.FetchAll(ctx, listOrders, pagination.Params{"status": "open"})
//
// Fetching several partitions under one global budget:
//
//	pf, err := pagination.NewPartitionFetcher[Order](cfg,
//		pagination.WithMaxConcurrent(3),
//		pagination.WithRateLimit(100, time.Minute))
//	results, err := pf.FetchPartitions(ctx, listOrders, []pagination.Partition{
//		{Key: "eu", Params: pagination.Params{"region": "eu"}},
//		{Key: "us", Params: pagination.Params{"region": "us"}},
//	})
//
// Failures never escape a fetch: a Result carries Success=false, the error and
// whatever data was collected before the failure. Partitions are isolated
// from each other.
package pagination
