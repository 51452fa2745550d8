package claim

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

// Tracker starts, resumes and resets claim countdowns over an AnchorStore
type Tracker struct {
	store  AnchorStore
	stages []types.Stage
	now    func() time.Time
}

// NewTracker creates a tracker for the given stage table
func NewTracker(store AnchorStore, stages []types.Stage) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("anchor store cannot be nil")
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("stage table cannot be empty")
	}
	for _, s := range stages {
		if s.DurationMinutes < 0 {
			return nil, fmt.Errorf("stage %q has negative duration", s.Label)
		}
	}
	copied := make([]types.Stage, len(stages))
	copy(copied, stages)
	return &Tracker{store: store, stages: copied, now: time.Now}, nil
}

// SetClock replaces the wall clock
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Now returns the tracker's wall-clock time
func (t *Tracker) Now() time.Time {
	return t.now()
}

// TotalMinutes is the countdown length
func (t *Tracker) TotalMinutes() int {
	return TotalMinutes(t.stages)
}

// Stages returns a copy of the stage table
func (t *Tracker) Stages() []types.Stage {
	out := make([]types.Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Start anchors a countdown at the current time. When an anchor already exists
// the countdown resumes from it and the clock is not reset.
func (t *Tracker) Start(ctx context.Context, address string) (types.ProgressState, error) {
	if err := validate(address); err != nil {
		return types.ProgressState{}, err
	}
	address = types.NormalizeAddress(address)

	anchor, err := t.store.SaveAnchorIfAbsent(ctx, address, t.now())
	if err != nil {
		return types.ProgressState{}, fmt.Errorf("failed to persist claim anchor: %w", err)
	}
	return ComputeProgress(address, &anchor, t.now(), t.stages), nil
}

// Progress derives the current state. Nothing is persisted.
func (t *Tracker) Progress(ctx context.Context, address string) (types.ProgressState, error) {
	if err := validate(address); err != nil {
		return types.ProgressState{}, err
	}
	address = types.NormalizeAddress(address)

	anchor, ok, err := t.store.LoadAnchor(ctx, address)
	if err != nil {
		return types.ProgressState{}, fmt.Errorf("failed to load claim anchor: %w", err)
	}
	if !ok {
		return ComputeProgress(address, nil, t.now(), t.stages), nil
	}
	return ComputeProgress(address, &anchor, t.now(), t.stages), nil
}

// Reset clears the anchor so the next Start begins a new countdown
func (t *Tracker) Reset(ctx context.Context, address string) error {
	if err := validate(address); err != nil {
		return err
	}
	if err := t.store.ClearAnchor(ctx, types.NormalizeAddress(address)); err != nil {
		return fmt.Errorf("failed to clear claim anchor: %w", err)
	}
	return nil
}

func validate(address string) error {
	if address == "" {
		return apperrors.NewMissingAddressError()
	}
	if !types.IsValidAddress(address) {
		return apperrors.NewInvalidAddressError(address)
	}
	return nil
}
