package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bioreactor",
	Short: "Bioreactor - simulated process control endpoint",
	Long: `bioreactor runs a simulated bioreactor behind an HTTP API and drives it from the command line:
read process values, write setpoints, and execute read/write/wait plans.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:8000", "API server address")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd, readCmd, writeCmd, trendCmd, loopsCmd, healthCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executionsCmd, auditCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
