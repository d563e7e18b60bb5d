// Package cli wires the daemon's commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "auctiond",
	Short: "auctiond - auction settlement daemon",
	Long: `auctiond runs an auction house: lots are created against pluggable
auction-type modules, bids and purchases move through escrow, and
settlement distributes proceeds, fees and refunds atomically.`,
	Version: "0.1.0-dev",
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
}
