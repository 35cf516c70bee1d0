package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/pagefetch/internal/config"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load the configuration file, apply environment overrides and check every
setting without contacting the upstream.

Examples:
  pagefetch validate --config pagefetch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.cfgFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK: %s\n", root.cfgFile)
			fmt.Fprintf(out, "  source:      %s\n", cfg.Source.URL)
			fmt.Fprintf(out, "  pagination:  %s, page size %d, max retries %d\n",
				cfg.Pagination.Style, cfg.Pagination.PageSize, cfg.Pagination.MaxRetries)
			fmt.Fprintf(out, "  rate limit:  %d per %s (%s)\n",
				cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, limiterBackend(cfg))
			fmt.Fprintf(out, "  partitions:  %d (max %d concurrent)\n",
				len(partitionsOf(cfg)), cfg.Concurrency.MaxConcurrent)
			return nil
		},
	}
}
