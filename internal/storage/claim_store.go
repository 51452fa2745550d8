package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/address-analyzer/internal/types"
)

const (
	claimStartPrefix  = "claim:start:"
	claimMadePrefix   = "claim:made:"
	claimResultPrefix = "claim:result:"
)

// ClaimStore keeps claim sessions in Redis so every server instance sees the
// same anchor for an address. Anchors are epoch milliseconds.
type ClaimStore struct {
	cache *RedisCache
}

// NewClaimStore creates a claim store over a Redis connection
func NewClaimStore(cache *RedisCache) *ClaimStore {
	return &ClaimStore{cache: cache}
}

func startKey(address string) string  { return claimStartPrefix + types.NormalizeAddress(address) }
func madeKey(address string) string   { return claimMadePrefix + types.NormalizeAddress(address) }
func resultKey(address string) string { return claimResultPrefix + types.NormalizeAddress(address) }

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt claim anchor %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// LoadAnchor implements claim.AnchorStore
func (s *ClaimStore) LoadAnchor(ctx context.Context, address string) (time.Time, bool, error) {
	raw, err := s.cache.Client().Get(ctx, startKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load claim anchor: %w", err)
	}
	t, err := parseMillis(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// SaveAnchorIfAbsent implements claim.AnchorStore with SETNX, so concurrent
// starts for one address agree on a single anchor.
func (s *ClaimStore) SaveAnchorIfAbsent(ctx context.Context, address string, start time.Time) (time.Time, error) {
	client := s.cache.Client()
	ms := start.UnixMilli()

	set, err := client.SetNX(ctx, startKey(address), strconv.FormatInt(ms, 10), 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to save claim anchor: %w", err)
	}
	if !set {
		existing, ok, err := s.LoadAnchor(ctx, address)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return existing, nil
		}
		// cleared between SETNX and GET; the caller may retry
		return time.Time{}, fmt.Errorf("claim anchor for %s changed concurrently", types.NormalizeAddress(address))
	}

	if err := client.Set(ctx, madeKey(address), "true", 0).Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed to mark claim made: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// ClearAnchor implements claim.AnchorStore
func (s *ClaimStore) ClearAnchor(ctx context.Context, address string) error {
	if err := s.cache.Client().Del(ctx, startKey(address), madeKey(address)).Err(); err != nil {
		return fmt.Errorf("failed to clear claim anchor: %w", err)
	}
	return nil
}

// ListAnchors implements claim.AnchorStore using SCAN
func (s *ClaimStore) ListAnchors(ctx context.Context) (map[string]time.Time, error) {
	client := s.cache.Client()
	out := make(map[string]time.Time)

	iter := client.Scan(ctx, 0, claimStartPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read claim anchor %s: %w", key, err)
		}
		t, err := parseMillis(raw)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(key, claimStartPrefix)] = t
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan claim anchors: %w", err)
	}
	return out, nil
}

// ClaimMade reports whether a claim was recorded for address
func (s *ClaimStore) ClaimMade(ctx context.Context, address string) (bool, error) {
	n, err := s.cache.Client().Exists(ctx, madeKey(address)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read claim flag: %w", err)
	}
	return n > 0, nil
}

// LoadResult implements claim.ResultStore
func (s *ClaimStore) LoadResult(ctx context.Context, address string) (*types.ChainAnalysis, error) {
	raw, err := s.cache.Client().Get(ctx, resultKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claim result: %w", err)
	}
	var result types.ChainAnalysis
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("corrupt claim result: %w", err)
	}
	return &result, nil
}

// SaveResult implements claim.ResultStore
func (s *ClaimStore) SaveResult(ctx context.Context, address string, result *types.ChainAnalysis) error {
	if result == nil {
		return errors.New("result cannot be nil")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode claim result: %w", err)
	}
	if err := s.cache.Client().Set(ctx, resultKey(address), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save claim result: %w", err)
	}
	return nil
}

// ClearResult implements claim.ResultStore
func (s *ClaimStore) ClearResult(ctx context.Context, address string) error {
	if err := s.cache.Client().Del(ctx, resultKey(address)).Err(); err != nil {
		return fmt.Errorf("failed to clear claim result: %w", err)
	}
	return nil
}
