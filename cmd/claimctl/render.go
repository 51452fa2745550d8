package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/types"
)

// syncWriter serializes writes from the tick and poll goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// currentStage is the first stage not yet completed, or the last one
func currentStage(state types.ProgressState) (int, types.Stage) {
	for i, s := range state.Stages {
		if !s.Completed {
			return i, s
		}
	}
	last := len(state.Stages) - 1
	if last < 0 {
		return 0, types.Stage{}
	}
	return last, state.Stages[last]
}

// formatProgress renders the one-line countdown shown while watching
func formatProgress(state types.ProgressState) string {
	switch state.Status {
	case types.ClaimNotStarted:
		return fmt.Sprintf("No claim started for %s (%d min countdown)", state.Address, state.TotalMinutes)
	case types.ClaimCompleted:
		return fmt.Sprintf("[%s] countdown complete after %d min, awaiting on-chain analysis", progressBar(100), state.TotalMinutes)
	}

	percent := 100.0
	if state.TotalMinutes > 0 {
		percent = float64(state.ElapsedMinutes) * 100 / float64(state.TotalMinutes)
	}
	i, stage := currentStage(state)
	return fmt.Sprintf("[%s] %d/%d min, %d min left | stage %d/%d: %s (%.0f%%)",
		progressBar(percent), state.ElapsedMinutes, state.TotalMinutes, state.TimeLeftMinutes,
		i+1, len(state.Stages), stage.Label, stage.Percent)
}

func progressBar(percent float64) string {
	const width = 20
	filled := int(percent * width / 100)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

// formatVerification renders one poll update
func formatVerification(v types.VerificationState) string {
	switch v.Status {
	case types.VerificationSuccess:
		return fmt.Sprintf("verification succeeded after %d attempt(s)", v.Attempts)
	case types.VerificationError:
		return fmt.Sprintf("verification attempt %d failed: %s (retrying)", v.Attempts, v.LastError)
	case types.VerificationPolling:
		return fmt.Sprintf("verification attempt %d: analysis not published yet", v.Attempts)
	default:
		return "verification idle"
	}
}

// writeChainAnalysis prints a published analysis with its category title
func writeChainAnalysis(w io.Writer, result *types.ChainAnalysis, catalog *analysis.Catalog) {
	title := "unknown category"
	if catalog != nil {
		if c, ok := catalog.Get(result.Category); ok {
			title = c.Title
		}
	}
	fmt.Fprintf(w, "Category:    %d (%s)\n", result.Category, title)
	fmt.Fprintf(w, "Explanation: %s\n", result.Explanation)
	if result.RoleID != "" {
		fmt.Fprintf(w, "Role:        %s\n", result.RoleID)
	}
}
