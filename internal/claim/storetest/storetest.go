// Package storetest holds behavior tests every claim.Store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/claim"
	"github.com/address-analyzer/internal/types"
)

const (
	addrA = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	addrB = "0x1111111111111111111111111111111111111111"
)

// Run exercises newStore against the claim.Store contract. newStore must
// return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) claim.Store) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	t.Run("missing anchor", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.LoadAnchor(ctx, addrA)
		require.NoError(t, err)
		assert.False(t, ok)

		r, err := s.LoadResult(ctx, addrA)
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("save if absent keeps first anchor", func(t *testing.T) {
		s := newStore(t)
		first, err := s.SaveAnchorIfAbsent(ctx, addrA, t0)
		require.NoError(t, err)
		assert.Equal(t, t0.UnixMilli(), first.UnixMilli())

		second, err := s.SaveAnchorIfAbsent(ctx, addrA, t0.Add(10*time.Minute))
		require.NoError(t, err)
		assert.True(t, first.Equal(second))

		loaded, ok, err := s.LoadAnchor(ctx, addrA)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, first.Equal(loaded))
	})

	t.Run("addresses are case insensitive", func(t *testing.T) {
		s := newStore(t)
		_, err := s.SaveAnchorIfAbsent(ctx, addrA, t0)
		require.NoError(t, err)

		_, ok, err := s.LoadAnchor(ctx, types.NormalizeAddress(addrA))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("clear and list", func(t *testing.T) {
		s := newStore(t)
		_, err := s.SaveAnchorIfAbsent(ctx, addrA, t0)
		require.NoError(t, err)
		_, err = s.SaveAnchorIfAbsent(ctx, addrB, t0.Add(time.Minute))
		require.NoError(t, err)

		anchors, err := s.ListAnchors(ctx)
		require.NoError(t, err)
		assert.Len(t, anchors, 2)
		assert.Contains(t, anchors, types.NormalizeAddress(addrA))

		require.NoError(t, s.ClearAnchor(ctx, addrA))
		require.NoError(t, s.ClearAnchor(ctx, addrA))

		_, ok, err := s.LoadAnchor(ctx, addrA)
		require.NoError(t, err)
		assert.False(t, ok)

		anchors, err = s.ListAnchors(ctx)
		require.NoError(t, err)
		assert.Len(t, anchors, 1)
	})

	t.Run("results", func(t *testing.T) {
		s := newStore(t)
		want := &types.ChainAnalysis{Category: 4, Explanation: "NFT collector", RoleID: "7", Analyzed: true}
		require.NoError(t, s.SaveResult(ctx, addrA, want))

		got, err := s.LoadResult(ctx, addrA)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// anchor and result are independent
		_, err = s.SaveAnchorIfAbsent(ctx, addrA, t0)
		require.NoError(t, err)
		require.NoError(t, s.ClearAnchor(ctx, addrA))
		got, err = s.LoadResult(ctx, addrA)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		require.NoError(t, s.ClearResult(ctx, addrA))
		got, err = s.LoadResult(ctx, addrA)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
