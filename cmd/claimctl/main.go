// Package main provides claimctl, a terminal client for address analysis and
// claim progress tracking.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/address-analyzer/internal/config"
	"github.com/address-analyzer/internal/logging"
)

var (
	// cfg is loaded once in PersistentPreRunE
	cfg    *config.Config
	logger *logging.Logger

	stateFile  string
	verbose    bool
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "claimctl",
	Short: "Analyze addresses and track role claims",
	Long: `claimctl classifies Ethereum addresses into behavioural categories and
follows a role claim until the on-chain analysis is published.

A claim countdown is anchored to a start time saved in a local state file,
so an interrupted watch resumes where it left off.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if stateFile == "" {
			stateFile = cfg.Claim.StateFile
		}

		level := logging.LevelWarn
		if verbose {
			level = logging.LevelDebug
		}
		logger = logging.NewLoggerWithOutput(level, logging.FormatText, os.Stderr)
		logging.SetGlobalLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "Claim state file (default: CLAIM_STATE_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for one-shot commands")

	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
