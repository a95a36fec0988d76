// Package cmd defines the CLI commands for the curatorscan executable.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curatorscan",
		Short: "Concurrent crawler for curator and creator profile pages",
		Long: `curatorscan visits profile pages from seed identifiers, extracts the
public contact surface (name, bio, outbound links, email addresses, recent
content), and merges the results into a prior CSV result set so repeated
runs accumulate instead of overwrite.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default searches ., $HOME/.curatorscan, /etc/curatorscan)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute runs the CLI. Per-target failures are reported in the summary and
// do not fail the process; only configuration and output I/O errors do.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
