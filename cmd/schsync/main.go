package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "schsync",
	Short: "Declarative schematic synchronization",
	Long: `schsync applies declarative schematic descriptions to a CAD host and
verifies the resulting connectivity.

Run "schsync serve" next to the CAD extension, then push descriptions with
"schsync apply". "validate", "plan" and "netlist" work offline.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, validateCmd, planCmd, applyCmd, netlistCmd, hashTokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
