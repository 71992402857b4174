// Package cli implements the virtd command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "virtd",
	Short: "virtd is a service virtualization server",
	Long: `virtd serves virtual endpoints: incoming requests are matched against
prioritized rules and answered with synthesized responses, scenario state
machines, injected faults, or traffic proxied to a real upstream and
optionally recorded for replay.

Configuration and endpoint definitions are read from YAML files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
