// Package main is the entry point for the ESVD explorer server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "esvd-server",
		Short:        "Explore ecosystem service valuation records",
		SilenceUsage: true,

		// Without a subcommand the HTTP server is started.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config/server.yaml", "Path to configuration file")

	cmd.AddCommand(
		newServeCmd(opts),
		newOptionsCmd(opts),
		newSummaryCmd(opts),
		newPointsCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
	)
	return cmd
}
