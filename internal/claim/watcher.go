package claim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// WatcherConfig configures a claim session
type WatcherConfig struct {
	TickInterval time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
	// Results, when set, is consulted before polling and receives the verified result
	Results ResultStore
	Logger  *logging.Logger
	// OnTick receives the derived progress on every tick
	OnTick func(types.ProgressState)
	// OnVerification receives the poll state after every attempt
	OnVerification func(types.VerificationState)
}

// Watcher drives one claim session: a progress tick and, once the countdown
// completes, a verification poll. Run owns both timers and stops them before
// returning.
type Watcher struct {
	tracker *Tracker
	poller  *Poller
	address string
	tick    time.Duration
	results ResultStore
	onTick  func(types.ProgressState)
	logger  *logging.Logger
}

type pollOutcome struct {
	result *types.ChainAnalysis
	err    error
}

// NewWatcher creates a watcher for address
func NewWatcher(tracker *Tracker, verifier Verifier, address string, cfg WatcherConfig) (*Watcher, error) {
	if tracker == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if err := validate(address); err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	address = types.NormalizeAddress(address)

	return &Watcher{
		tracker: tracker,
		poller: NewPoller(verifier, address, PollerConfig{
			Interval:    cfg.PollInterval,
			CallTimeout: cfg.CallTimeout,
			Logger:      logger,
			OnUpdate:    cfg.OnVerification,
		}),
		address: address,
		tick:    cfg.TickInterval,
		results: cfg.Results,
		onTick:  cfg.OnTick,
		logger:  logger.WithFields(map[string]interface{}{"component": "claim_watcher", "address": address}),
	}, nil
}

// Address returns the watched address
func (w *Watcher) Address() string {
	return w.address
}

// Verification returns the poll state; idle until the countdown completes
func (w *Watcher) Verification() types.VerificationState {
	return w.poller.State()
}

// Run ticks until a result is known or ctx ends. It returns ErrNotStarted if
// the anchor disappears, and ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context) (*types.ChainAnalysis, error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	var polled chan pollOutcome

	for {
		state, err := w.tracker.Progress(ctx, w.address)
		switch {
		case err != nil:
			w.logger.WithError(err).Warn("failed to derive claim progress")
		case state.Status == types.ClaimNotStarted:
			return nil, ErrNotStarted
		default:
			if w.onTick != nil {
				w.onTick(state)
			}
			if state.Status == types.ClaimCompleted && polled == nil {
				known, err := w.knownResult(ctx)
				if err != nil {
					w.logger.WithError(err).Warn("failed to load stored claim result")
				}
				if known != nil {
					return known, nil
				}

				polled = make(chan pollOutcome, 1)
				wg.Add(1)
				w.logger.Info("claim countdown completed, starting verification poll")
				go func() {
					defer wg.Done()
					result, err := w.poller.Run(ctx)
					polled <- pollOutcome{result: result, err: err}
				}()
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-polled:
			if out.err != nil {
				return nil, out.err
			}
			w.store(out.result)
			return out.result, nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) knownResult(ctx context.Context) (*types.ChainAnalysis, error) {
	if w.results == nil {
		return nil, nil
	}
	return w.results.LoadResult(ctx, w.address)
}

func (w *Watcher) store(result *types.ChainAnalysis) {
	if w.results == nil || result == nil {
		return
	}
	// detached from the session so a concurrent cancel does not drop the result
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.results.SaveResult(ctx, w.address, result); err != nil {
		w.logger.WithError(err).Error("failed to persist verified claim result")
	}
}
