// Package claim tracks a role claim from the moment it is sent until the
// on-chain analysis contract publishes a category for the claimant.
//
// A claim is a countdown over a fixed stage table anchored to a persisted
// start time. Progress is derived from the anchor on every tick and never
// written back. Once the countdown completes, a verification poll reads the
// contract until a result appears.
package claim

import (
	"time"

	"github.com/address-analyzer/internal/types"
)

// TotalMinutes is the countdown length of a stage table
func TotalMinutes(stages []types.Stage) int {
	total := 0
	for _, s := range stages {
		total += s.DurationMinutes
	}
	return total
}

// ComputeProgress derives the progress of a claim anchored at start.
// A nil start yields a not-started state with no stage completed.
func ComputeProgress(address string, start *time.Time, now time.Time, stages []types.Stage) types.ProgressState {
	total := TotalMinutes(stages)
	state := types.ProgressState{
		Address:         address,
		Status:          types.ClaimNotStarted,
		TimeLeftMinutes: total,
		TotalMinutes:    total,
		Stages:          make([]types.Stage, len(stages)),
	}
	copy(state.Stages, stages)

	if start == nil {
		for i := range state.Stages {
			state.Stages[i].Completed = false
			state.Stages[i].Percent = 0
		}
		return state
	}

	anchor := *start
	state.StartTime = &anchor

	elapsed := 0
	if d := now.Sub(anchor); d > 0 {
		elapsed = int(d / time.Minute)
	}
	state.ElapsedMinutes = elapsed
	if left := total - elapsed; left > 0 {
		state.TimeLeftMinutes = left
	} else {
		state.TimeLeftMinutes = 0
	}

	if elapsed >= total {
		state.Status = types.ClaimCompleted
	} else {
		state.Status = types.ClaimRunning
	}

	// Stage 0 marks the claim itself; stage i ends once the durations of
	// stages 1..i have elapsed.
	threshold := 0
	for i := range state.Stages {
		if i == 0 {
			state.Stages[i].Completed = true
			state.Stages[i].Percent = 100
			continue
		}
		begin := threshold
		threshold += state.Stages[i].DurationMinutes
		state.Stages[i].Completed = elapsed >= threshold
		state.Stages[i].Percent = stagePercent(elapsed, begin, threshold)
	}
	return state
}

func stagePercent(elapsed, begin, end int) float64 {
	switch {
	case elapsed >= end:
		return 100
	case elapsed <= begin:
		return 0
	default:
		return float64(elapsed-begin) * 100 / float64(end-begin)
	}
}
