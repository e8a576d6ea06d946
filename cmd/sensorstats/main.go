// Package main provides the entry point for the sensorstats CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sensorstats/cmd/sensorstats/commands"
	"github.com/Sumatoshi-tech/sensorstats/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sensorstats",
		Short: "Sensorstats - streaming sensor reading aggregation",
		Long: `Sensorstats aggregates large CSV files of sensor readings in constant
memory: per-group statistics, top-k rankings, and outlier detection.

Commands:
  run       Aggregate an input file and write the report artifacts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(versionCmd())

	// Interrupt cancels the run context; pass one checkpoints its state on
	// cancellation so the next --resume run continues mid-stream.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
