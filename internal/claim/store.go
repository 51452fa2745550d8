package claim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/address-analyzer/internal/types"
)

// ErrNotStarted is returned when an operation needs an anchor that does not exist
var ErrNotStarted = errors.New("claim not started")

// AnchorStore persists claim start anchors keyed by lowercased address.
// Anchors are stored with millisecond precision.
type AnchorStore interface {
	// LoadAnchor returns the anchor and whether one exists
	LoadAnchor(ctx context.Context, address string) (time.Time, bool, error)
	// SaveAnchorIfAbsent stores start unless an anchor exists, and returns the effective anchor
	SaveAnchorIfAbsent(ctx context.Context, address string, start time.Time) (time.Time, error)
	// ClearAnchor removes the anchor. Clearing a missing anchor is not an error.
	ClearAnchor(ctx context.Context, address string) error
	// ListAnchors returns every stored anchor
	ListAnchors(ctx context.Context) (map[string]time.Time, error)
}

// ResultStore persists verified on-chain results
type ResultStore interface {
	// LoadResult returns nil when no result is stored
	LoadResult(ctx context.Context, address string) (*types.ChainAnalysis, error)
	SaveResult(ctx context.Context, address string, result *types.ChainAnalysis) error
	ClearResult(ctx context.Context, address string) error
}

// Store is the persistence a claim session needs
type Store interface {
	AnchorStore
	ResultStore
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.RWMutex
	anchors map[string]time.Time
	results map[string]types.ChainAnalysis
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		anchors: make(map[string]time.Time),
		results: make(map[string]types.ChainAnalysis),
	}
}

// LoadAnchor implements AnchorStore
func (s *MemoryStore) LoadAnchor(_ context.Context, address string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.anchors[types.NormalizeAddress(address)]
	return t, ok, nil
}

// SaveAnchorIfAbsent implements AnchorStore; an existing anchor wins
func (s *MemoryStore) SaveAnchorIfAbsent(_ context.Context, address string, start time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := types.NormalizeAddress(address)
	if existing, ok := s.anchors[key]; ok {
		return existing, nil
	}
	start = toMillis(start)
	s.anchors[key] = start
	return start, nil
}

// ClearAnchor implements AnchorStore
func (s *MemoryStore) ClearAnchor(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.anchors, types.NormalizeAddress(address))
	return nil
}

// ListAnchors implements AnchorStore
func (s *MemoryStore) ListAnchors(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.anchors))
	for k, v := range s.anchors {
		out[k] = v
	}
	return out, nil
}

// LoadResult implements ResultStore
func (s *MemoryStore) LoadResult(_ context.Context, address string) (*types.ChainAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[types.NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// SaveResult implements ResultStore
func (s *MemoryStore) SaveResult(_ context.Context, address string, result *types.ChainAnalysis) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[types.NormalizeAddress(address)] = *result
	return nil
}

// ClearResult implements ResultStore
func (s *MemoryStore) ClearResult(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, types.NormalizeAddress(address))
	return nil
}

// toMillis drops sub-millisecond precision and the monotonic reading so an
// anchor compares equal after a round trip through any store.
func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
