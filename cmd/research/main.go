// Command research runs a developer tools research query from the terminal.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Research developer tools for a need",
	Long: `research discovers developer tools that match a free-text need, extracts a
structured profile for each one and writes a short comparative recommendation.

Configuration comes from the same environment variables as the API server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up on the run after this long")

	runCmd.Flags().IntVarP(&runLimit, "limit", "n", 0, "Maximum number of tools to research (default from CANDIDATE_LIMIT)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the API response shape as JSON")
	runCmd.Flags().BoolVar(&runFull, "full", false, "With --json, print every record with its outcome")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Print markdown without terminal styling")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
