package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type rootFlags struct {
	cfgFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pagefetch",
		Short: "Fetch paginated collections from a rate-limited API",
		Long: `pagefetch fetches complete paginated collections from a rate-limited,
occasionally failing HTTP API.

Every configured partition is paged sequentially, partitions run concurrently
up to a bound, and all requests draw from one sliding-window budget (in memory
or in Redis). Transient failures are retried with exponential backoff that
honours Retry-After.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.cfgFile, "config", "c", "pagefetch.yaml", "config file path")

	cmd.AddCommand(newFetchCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	return cmd
}
