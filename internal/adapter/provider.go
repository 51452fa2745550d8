package adapter

import (
	"fmt"
	"sync"
	"time"
)

// unhealthyAfter is the number of consecutive failures after which an endpoint pair reports unhealthy
const unhealthyAfter = 5

// ProviderHealth is a snapshot of an endpoint pair
type ProviderHealth struct {
	ActiveURL        string        `json:"activeUrl"`
	OnSecondary      bool          `json:"onSecondary"`
	Calls            int64         `json:"calls"`
	Failures         int64         `json:"failures"`
	AverageLatency   time.Duration `json:"averageLatency"`
	LastError        string        `json:"lastError,omitempty"`
	LastFailureAt    time.Time     `json:"lastFailureAt,omitempty"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	Healthy          bool          `json:"healthy"`
}

// RPCProvider holds the primary and optional secondary endpoint of one
// network and which of them is active. Alchemy and contract reads share it.
type RPCProvider struct {
	mu sync.RWMutex

	endpoints []string
	active    int

	calls            int64
	failures         int64
	latency          time.Duration
	lastErr          error
	lastFailureAt    time.Time
	consecutiveFails int
}

// NewRPCProvider creates a provider; secondaryURL may be empty
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}
	endpoints := []string{primaryURL}
	if secondaryURL != "" && secondaryURL != primaryURL {
		endpoints = append(endpoints, secondaryURL)
	}
	return &RPCProvider{endpoints: endpoints}, nil
}

// CurrentURL returns the active endpoint
func (p *RPCProvider) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active]
}

// Failover switches to the other endpoint, or fails when only one is configured
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) < 2 {
		return fmt.Errorf("no secondary endpoint configured")
	}
	p.active = (p.active + 1) % len(p.endpoints)
	return nil
}

// RecordSuccess records a completed call and its latency
func (p *RPCProvider) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.latency += duration
	p.consecutiveFails = 0
}

// RecordFailure records a failed call
func (p *RPCProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.failures++
	p.lastErr = err
	p.lastFailureAt = time.Now()
	p.consecutiveFails++
}

// IsHealthy is false once consecutive failures reach the threshold
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveFails < unhealthyAfter
}

// GetHealth returns a snapshot of the call statistics
func (p *RPCProvider) GetHealth() *ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h := &ProviderHealth{
		ActiveURL:        p.endpoints[p.active],
		OnSecondary:      p.active != 0,
		Calls:            p.calls,
		Failures:         p.failures,
		LastFailureAt:    p.lastFailureAt,
		ConsecutiveFails: p.consecutiveFails,
		Healthy:          p.consecutiveFails < unhealthyAfter,
	}
	if ok := p.calls - p.failures; ok > 0 {
		h.AverageLatency = p.latency / time.Duration(ok)
	}
	if p.lastErr != nil {
		h.LastError = p.lastErr.Error()
	}
	return h
}

// Reset returns to the primary endpoint and clears the failure streak
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = 0
	p.consecutiveFails = 0
}
