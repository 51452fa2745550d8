package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/claim"
	"github.com/address-analyzer/internal/claim/storetest"
)

const claimAddress = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func TestClaimStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) claim.Store {
		cache, _ := testRedis(t)
		return NewClaimStore(cache)
	})
}

func TestClaimStore_KeyLayout(t *testing.T) {
	cache, mr := testRedis(t)
	store := NewClaimStore(cache)
	ctx := testContext(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.SaveAnchorIfAbsent(ctx, claimAddress, t0)
	require.NoError(t, err)

	raw, err := mr.Get("claim:start:0x742d35cc6634c0532925a3b844bc454e4438f44e")
	require.NoError(t, err)
	assert.Equal(t, "1714564800000", raw)

	made, err := store.ClaimMade(ctx, claimAddress)
	require.NoError(t, err)
	assert.True(t, made)

	require.NoError(t, store.ClearAnchor(ctx, claimAddress))
	made, err = store.ClaimMade(ctx, claimAddress)
	require.NoError(t, err)
	assert.False(t, made)
}

func TestClaimStore_SharedAcrossInstances(t *testing.T) {
	cache, _ := testRedis(t)
	ctx := testContext(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := NewClaimStore(cache)
	second := NewClaimStore(NewRedisCacheFromClient(cache.Client()))

	a, err := first.SaveAnchorIfAbsent(ctx, claimAddress, t0)
	require.NoError(t, err)
	b, err := second.SaveAnchorIfAbsent(ctx, claimAddress, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestClaimStore_CorruptValues(t *testing.T) {
	cache, mr := testRedis(t)
	store := NewClaimStore(cache)
	ctx := testContext(t)

	require.NoError(t, mr.Set("claim:start:0x742d35cc6634c0532925a3b844bc454e4438f44e", "yesterday"))
	_, _, err := store.LoadAnchor(ctx, claimAddress)
	assert.Error(t, err)

	require.NoError(t, mr.Set("claim:result:0x742d35cc6634c0532925a3b844bc454e4438f44e", "{"))
	_, err = store.LoadResult(ctx, claimAddress)
	assert.Error(t, err)

	assert.Error(t, store.SaveResult(ctx, claimAddress, nil))
}
