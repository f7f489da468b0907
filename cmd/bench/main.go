// Command bench drives concurrent create/release load against a device's
// object caches and exposes optional pprof/Prometheus endpoints.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load generator for the content-less object cache",
	Long: `bench creates and releases deduplicated device objects from many goroutines
and reports cache hit rates, live entries and throughput.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
