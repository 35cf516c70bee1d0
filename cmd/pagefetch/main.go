// pagefetch fetches every page of a paginated JSON API across partitions,
// under a shared request budget, and writes the records as a JSON report.
//
// Usage:
//
//	# Fetch everything described by a configuration file
//	pagefetch fetch --config pagefetch.yaml --output report.json
//
//	# Expose Prometheus metrics while fetching
//	pagefetch fetch --config pagefetch.yaml --metrics-addr :9090
//
//	# Check a configuration file without calling the upstream
//	pagefetch validate --config pagefetch.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
