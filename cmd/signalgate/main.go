// Command signalgate runs the gateway or analytics service, selected by
// subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "signalgate",
		Short:         "API gateway with an embedded real-time analytics pipeline",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "gateway",
		Short: "Run the request-forwarding gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "analytics",
		Short: "Run the telemetry ingest and query service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalytics(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
