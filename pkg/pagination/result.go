package pagination

import "time"

// Result is the outcome of fetching one collection. On failure it carries the
// data collected before the error.
type Result[T any] struct {
	// Partition is the partition key, empty for single fetches.
	Partition string

	// Data holds every record in call order.
	Data []T

	// Success is true when the collection was fetched to the end or up to
	// MaxPages.
	Success bool

	// Err is the error that stopped the fetch.
	Err error

	// Requests counts page function calls, retries included.
	Requests int

	// Retries counts attempts after the first, summed over all pages.
	Retries int

	// Pages counts successfully fetched pages.
	Pages int

	// Truncated is set when MaxPages stopped the fetch.
	Truncated bool

	// Duration is the time the fetch took on the fetcher's clock.
	Duration time.Duration
}

// ErrorMessage returns the error text, or "" on success.
func (r Result[T]) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Records returns the number of records fetched.
func (r Result[T]) Records() int {
	return len(r.Data)
}
