package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/address-analyzer/internal/types"
)

// fileRecord mirrors the two local keys a browser session keeps per claim:
// the start time in epoch milliseconds and whether a claim was made.
type fileRecord struct {
	ClaimStartTime int64                `json:"claimStartTime,omitempty"`
	ClaimMade      bool                 `json:"claimMade"`
	Result         *types.ChainAnalysis `json:"result,omitempty"`
}

type fileState struct {
	Claims map[string]*fileRecord `json:"claims"`
}

// FileStore is a Store backed by a single JSON file, used by terminal sessions
// so a countdown survives restarts.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The file is created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("state file path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) read() (*fileState, error) {
	state := &fileState{Claims: make(map[string]*fileRecord)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	if state.Claims == nil {
		state.Claims = make(map[string]*fileRecord)
	}
	return state, nil
}

// write replaces the file atomically
func (s *FileStore) write(state *fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".claim-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// update runs fn over the current state and persists it when fn reports a change
func (s *FileStore) update(fn func(*fileState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return err
	}
	if !fn(state) {
		return nil
	}
	return s.write(state)
}

// LoadAnchor implements AnchorStore
func (s *FileStore) LoadAnchor(_ context.Context, address string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return time.Time{}, false, err
	}
	rec, ok := state.Claims[types.NormalizeAddress(address)]
	if !ok || rec.ClaimStartTime == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(rec.ClaimStartTime).UTC(), true, nil
}

// SaveAnchorIfAbsent implements AnchorStore; an existing anchor wins
func (s *FileStore) SaveAnchorIfAbsent(_ context.Context, address string, start time.Time) (time.Time, error) {
	effective := toMillis(start)
	err := s.update(func(state *fileState) bool {
		key := types.NormalizeAddress(address)
		rec, ok := state.Claims[key]
		if ok && rec.ClaimStartTime != 0 {
			effective = time.UnixMilli(rec.ClaimStartTime).UTC()
			return false
		}
		if !ok {
			rec = &fileRecord{}
			state.Claims[key] = rec
		}
		rec.ClaimStartTime = effective.UnixMilli()
		rec.ClaimMade = true
		return true
	})
	return effective, err
}

// ClearAnchor implements AnchorStore
func (s *FileStore) ClearAnchor(_ context.Context, address string) error {
	return s.update(func(state *fileState) bool {
		key := types.NormalizeAddress(address)
		rec, ok := state.Claims[key]
		if !ok {
			return false
		}
		if rec.Result == nil {
			delete(state.Claims, key)
		} else {
			rec.ClaimStartTime = 0
			rec.ClaimMade = false
		}
		return true
	})
}

// ListAnchors implements AnchorStore
func (s *FileStore) ListAnchors(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(state.Claims))
	for addr, rec := range state.Claims {
		if rec.ClaimStartTime != 0 {
			out[addr] = time.UnixMilli(rec.ClaimStartTime).UTC()
		}
	}
	return out, nil
}

// LoadResult implements ResultStore
func (s *FileStore) LoadResult(_ context.Context, address string) (*types.ChainAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return nil, err
	}
	if rec, ok := state.Claims[types.NormalizeAddress(address)]; ok && rec.Result != nil {
		r := *rec.Result
		return &r, nil
	}
	return nil, nil
}

// SaveResult implements ResultStore
func (s *FileStore) SaveResult(_ context.Context, address string, result *types.ChainAnalysis) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	return s.update(func(state *fileState) bool {
		key := types.NormalizeAddress(address)
		rec, ok := state.Claims[key]
		if !ok {
			rec = &fileRecord{}
			state.Claims[key] = rec
		}
		r := *result
		rec.Result = &r
		return true
	})
}

// ClearResult implements ResultStore
func (s *FileStore) ClearResult(_ context.Context, address string) error {
	return s.update(func(state *fileState) bool {
		key := types.NormalizeAddress(address)
		rec, ok := state.Claims[key]
		if !ok || rec.Result == nil {
			return false
		}
		if rec.ClaimStartTime == 0 {
			delete(state.Claims, key)
		} else {
			rec.Result = nil
		}
		return true
	})
}
