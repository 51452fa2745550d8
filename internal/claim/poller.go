package claim

import (
	"context"
	"sync"
	"time"

	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// Verifier reads the on-chain analysis of an address
type Verifier interface {
	CheckAddress(ctx context.Context, address string) (*types.ChainAnalysis, error)
}

// PollerConfig configures a verification poll
type PollerConfig struct {
	Interval    time.Duration
	CallTimeout time.Duration
	Logger      *logging.Logger
	// OnUpdate receives the state after every attempt
	OnUpdate func(types.VerificationState)
}

// Poller reads the contract until it reports the address as analyzed.
// Attempts never overlap: the next one waits for the current read to return.
type Poller struct {
	verifier Verifier
	address  string
	interval time.Duration
	timeout  time.Duration
	onUpdate func(types.VerificationState)
	logger   *logging.Logger
	now      func() time.Time

	mu    sync.RWMutex
	state types.VerificationState
}

// NewPoller creates an idle poller
func NewPoller(verifier Verifier, address string, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Poller{
		verifier: verifier,
		address:  types.NormalizeAddress(address),
		interval: cfg.Interval,
		timeout:  cfg.CallTimeout,
		onUpdate: cfg.OnUpdate,
		logger:   logger.WithField("address", types.NormalizeAddress(address)),
		now:      time.Now,
		state:    types.VerificationState{Status: types.VerificationIdle},
	}
}

// State returns a snapshot of the verification state
func (p *Poller) State() types.VerificationState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Run checks immediately, then once per interval, until the contract reports a
// result or ctx ends. Read failures are recorded and retried on the next firing.
func (p *Poller) Run(ctx context.Context) (*types.ChainAnalysis, error) {
	p.record(func(s *types.VerificationState) { s.Status = types.VerificationPolling })

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if result := p.attempt(ctx); result != nil {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) attempt(ctx context.Context) *types.ChainAnalysis {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	result, err := p.verifier.CheckAddress(callCtx, p.address)
	cancel()

	if ctx.Err() != nil {
		return nil
	}
	checked := p.now()

	switch {
	case err != nil:
		p.logger.WithError(err).Warn("verification read failed, retrying on next interval")
		p.record(func(s *types.VerificationState) {
			s.Status = types.VerificationError
			s.LastError = err.Error()
			s.Attempts++
			s.LastCheckedAt = &checked
		})
		return nil
	case result == nil || !result.Analyzed:
		p.logger.Debug("address not analyzed yet")
		p.record(func(s *types.VerificationState) {
			s.Status = types.VerificationPolling
			s.LastError = ""
			s.Attempts++
			s.LastCheckedAt = &checked
		})
		return nil
	default:
		p.logger.WithFields(map[string]interface{}{
			"category": result.Category,
			"roleId":   result.RoleID,
		}).Info("verification succeeded")
		r := *result
		p.record(func(s *types.VerificationState) {
			s.Status = types.VerificationSuccess
			s.LastError = ""
			s.Attempts++
			s.LastCheckedAt = &checked
			s.Result = &r
		})
		return &r
	}
}

func (p *Poller) record(fn func(*types.VerificationState)) {
	p.mu.Lock()
	fn(&p.state)
	snapshot := p.state
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snapshot)
	}
}
