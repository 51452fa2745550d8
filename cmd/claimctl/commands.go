package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/bootstrap"
	"github.com/address-analyzer/internal/claim"
	"github.com/address-analyzer/internal/config"
	"github.com/address-analyzer/internal/types"
)

// openVerifier connects the on-chain reader. Replaced in tests.
var openVerifier = func(cfg *config.Config) (claim.Verifier, func(), error) {
	v, err := bootstrap.NewVerifier(cfg)
	if err != nil {
		return nil, nil, err
	}
	return v, v.Close, nil
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the configured address categories",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <address>",
	Short: "Classify an address with the analysis model",
	Long: `Classify an address into one of the configured categories.

Recent transfers from the configured networks are included as evidence.
When the model cannot be reached or its reply cannot be read, the default
category is reported together with the reason.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var checkCmd = &cobra.Command{
	Use:   "check <address>",
	Short: "Read the published on-chain analysis of an address once",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var watchCmd = &cobra.Command{
	Use:   "watch <address>",
	Short: "Start or resume a claim countdown and wait for verification",
	Long: `Start a claim countdown for an address, or resume the saved one, and
show its progress every tick. When the countdown completes the on-chain
analysis is polled until it is published. Ctrl-C stops both timers; the
saved start time is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var statusCmd = &cobra.Command{
	Use:   "status <address>",
	Short: "Show the saved claim progress without watching",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset <address>",
	Short: "Forget the saved claim of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

func runCategories(cmd *cobra.Command, args []string) error {
	catalog, err := analysis.LoadCatalog(cfg.Analysis.CategoriesFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range catalog.Categories() {
		fmt.Fprintf(out, "%2d  %s\n    %s\n", c.ID, c.Title, c.Description)
	}
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	stack, err := bootstrap.NewAnalysis(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	result, err := stack.Service.Analyze(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	title := "unknown category"
	if c, ok := stack.Catalog.Get(result.Category); ok {
		title = c.Title
	}
	fmt.Fprintf(out, "Address:     %s\n", result.Address)
	fmt.Fprintf(out, "Category:    %d (%s)\n", result.Category, title)
	fmt.Fprintf(out, "Explanation: %s\n", result.Explanation)
	if result.IsFallback() {
		fmt.Fprintf(out, "Note:        default category (%s)\n", result.Source)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	verifier, closeFn, err := openVerifier(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := verifier.CheckAddress(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.Analyzed {
		fmt.Fprintf(out, "%s has not been analyzed yet\n", args[0])
		return nil
	}
	writeChainAnalysis(out, result, loadCatalogOrNil())
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	address := args[0]
	tracker, store, err := openTracker()
	if err != nil {
		return err
	}

	verifier, closeFn, err := openVerifier(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := tracker.Start(ctx, address)
	if err != nil {
		return err
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	fmt.Fprintf(out, "Watching claim for %s, started %s (state: %s)\n",
		state.Address, state.StartTime.Local().Format("2006-01-02 15:04:05"), store.Path())

	watcher, err := claim.NewWatcher(tracker, verifier, address, claim.WatcherConfig{
		TickInterval: cfg.Claim.TickInterval,
		PollInterval: cfg.Claim.PollInterval,
		CallTimeout:  cfg.Claim.CallTimeout,
		Results:      store,
		Logger:       logger,
		OnTick: func(s types.ProgressState) {
			fmt.Fprintf(out, "\r%-100s", formatProgress(s))
		},
		OnVerification: func(v types.VerificationState) {
			fmt.Fprintf(out, "\n%s\n", formatVerification(v))
		},
	})
	if err != nil {
		return err
	}

	result, err := watcher.Run(ctx)
	fmt.Fprintln(out)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(out, "Stopped. Run watch again to resume from the saved start time.")
		return nil
	case errors.Is(err, claim.ErrNotStarted):
		return fmt.Errorf("claim for %s was reset while watching", address)
	case err != nil:
		return err
	}

	fmt.Fprintln(out, "Claim verified.")
	writeChainAnalysis(out, result, loadCatalogOrNil())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	tracker, store, err := openTracker()
	if err != nil {
		return err
	}
	state, err := tracker.Progress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatProgress(state))
	result, err := store.LoadResult(cmd.Context(), state.Address)
	if err != nil {
		return err
	}
	if result != nil {
		writeChainAnalysis(out, result, loadCatalogOrNil())
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	tracker, store, err := openTracker()
	if err != nil {
		return err
	}
	if err := tracker.Reset(cmd.Context(), args[0]); err != nil {
		return err
	}
	if err := store.ClearResult(cmd.Context(), types.NormalizeAddress(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Claim for %s reset\n", args[0])
	return nil
}

func openTracker() (*claim.Tracker, *claim.FileStore, error) {
	store, err := claim.NewFileStore(stateFile)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := claim.NewTracker(store, cfg.Claim.Stages)
	if err != nil {
		return nil, nil, err
	}
	return tracker, store, nil
}

func loadCatalogOrNil() *analysis.Catalog {
	catalog, err := analysis.LoadCatalog(cfg.Analysis.CategoriesFile)
	if err != nil {
		logger.WithError(err).Warn("failed to load category catalog")
		return nil
	}
	return catalog
}
