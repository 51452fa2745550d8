package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/claim"
	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// ClaimServiceConfig holds the collaborators of a ClaimService
type ClaimServiceConfig struct {
	Store        claim.Store
	Verifier     claim.Verifier
	Stages       []types.Stage
	Catalog      *analysis.Catalog
	TickInterval time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
	Logger       *logging.Logger
}

// ClaimStatus is the server-side view of a claim session
type ClaimStatus struct {
	Progress     types.ProgressState     `json:"progress"`
	Verification types.VerificationState `json:"verification"`
	Result       *types.ChainAnalysis    `json:"result,omitempty"`
	Category     *types.Category         `json:"category,omitempty"`
	Watching     bool                    `json:"watching"`
}

type claimSession struct {
	watcher *claim.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *claimSession) running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// ClaimService keeps one watcher per claimed address, replacing the browser's
// local countdown with a shared session record.
type ClaimService struct {
	tracker  *claim.Tracker
	store    claim.Store
	verifier claim.Verifier
	catalog  *analysis.Catalog
	cfg      claim.WatcherConfig
	logger   *logging.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*claimSession
	closed   bool

	// addrLocks serializes Start and Reset per address
	addrLocks sync.Map
}

// NewClaimService creates a claim service
func NewClaimService(cfg *ClaimServiceConfig) (*ClaimService, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("claim store cannot be nil")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	tracker, err := claim.NewTracker(cfg.Store, cfg.Stages)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &ClaimService{
		tracker:  tracker,
		store:    cfg.Store,
		verifier: cfg.Verifier,
		catalog:  cfg.Catalog,
		cfg: claim.WatcherConfig{
			TickInterval: cfg.TickInterval,
			PollInterval: cfg.PollInterval,
			CallTimeout:  cfg.CallTimeout,
			Results:      cfg.Store,
			Logger:       logger,
		},
		logger:     logger.WithField("component", "claim_service"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[string]*claimSession),
	}, nil
}

// Tracker exposes the underlying tracker
func (s *ClaimService) Tracker() *claim.Tracker {
	return s.tracker
}

// Start records a claim for address and begins watching it. Starting an
// existing claim resumes it without resetting the countdown.
func (s *ClaimService) Start(ctx context.Context, address string) (*ClaimStatus, error) {
	if err := s.startLocked(ctx, address); err != nil {
		return nil, err
	}
	return s.Status(ctx, address)
}

func (s *ClaimService) startLocked(ctx context.Context, address string) error {
	if err := validateAddress(address); err != nil {
		return err
	}
	key := types.NormalizeAddress(address)
	unlock := s.lockAddress(key)
	defer unlock()

	if _, err := s.tracker.Start(ctx, key); err != nil {
		return err
	}
	return s.watch(key)
}

func validateAddress(address string) error {
	if address == "" {
		return apperrors.NewMissingAddressError()
	}
	if !types.IsValidAddress(address) {
		return apperrors.NewInvalidAddressError(address)
	}
	return nil
}

func (s *ClaimService) lockAddress(key string) func() {
	v, _ := s.addrLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Status derives the current state of a claim. It has no side effects.
func (s *ClaimService) Status(ctx context.Context, address string) (*ClaimStatus, error) {
	progress, err := s.tracker.Progress(ctx, address)
	if err != nil {
		return nil, err
	}
	key := types.NormalizeAddress(address)

	result, err := s.store.LoadResult(ctx, key)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load claim result", err)
	}

	status := &ClaimStatus{
		Progress:     progress,
		Verification: types.VerificationState{Status: types.VerificationIdle},
		Result:       result,
	}

	s.mu.Lock()
	session, ok := s.sessions[key]
	s.mu.Unlock()
	if ok {
		status.Verification = session.watcher.Verification()
		status.Watching = session.running()
	}
	if result != nil {
		if status.Verification.Status != types.VerificationSuccess {
			status.Verification = types.VerificationState{Status: types.VerificationSuccess, Result: result}
		}
		if s.catalog != nil {
			if c, found := s.catalog.Get(result.Category); found {
				status.Category = &c
			}
		}
	}
	return status, nil
}

// Reset stops watching address and forgets its anchor and result
func (s *ClaimService) Reset(ctx context.Context, address string) error {
	if err := validateAddress(address); err != nil {
		return err
	}
	key := types.NormalizeAddress(address)
	unlock := s.lockAddress(key)
	defer unlock()

	// the watcher stops before the anchor goes so no session outlives its claim
	s.mu.Lock()
	session, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if ok {
		session.cancel()
		select {
		case <-session.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.tracker.Reset(ctx, key); err != nil {
		return err
	}
	if err := s.store.ClearResult(ctx, key); err != nil {
		return apperrors.NewInternalError("failed to clear claim result", err)
	}
	s.logger.WithField("address", key).Info("claim reset")
	return nil
}

// Resume starts watchers for every stored anchor. It is called once at boot.
func (s *ClaimService) Resume(ctx context.Context) (int, error) {
	anchors, err := s.store.ListAnchors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list claim anchors: %w", err)
	}
	resumed := 0
	for address := range anchors {
		if err := s.watch(address); err != nil {
			return resumed, err
		}
		resumed++
	}
	if resumed > 0 {
		s.logger.WithField("claims", resumed).Info("resumed claim watchers")
	}
	return resumed, nil
}

// Shutdown cancels every watcher and waits for them to stop
func (s *ClaimService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("claim watchers did not stop: %w", ctx.Err())
	}
}

// watch starts a watcher for address unless one is already running
func (s *ClaimService) watch(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.NewServiceUnavailableError("claim tracker")
	}
	if existing, ok := s.sessions[address]; ok && existing.running() {
		return nil
	}

	watcher, err := claim.NewWatcher(s.tracker, s.verifier, address, s.cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	session := &claimSession{watcher: watcher, cancel: cancel, done: make(chan struct{})}
	s.sessions[address] = session

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(session.done)
		defer cancel()

		logger := s.logger.WithField("address", address)
		result, err := watcher.Run(ctx)
		switch {
		case err == nil:
			logger.WithField("category", result.Category).Info("claim verified")
		case errors.Is(err, context.Canceled):
			logger.Debug("claim watcher stopped")
		case errors.Is(err, claim.ErrNotStarted):
			logger.Info("claim anchor removed, watcher stopped")
		default:
			logger.WithError(err).Warn("claim watcher ended with error")
		}
	}()
	return nil
}
