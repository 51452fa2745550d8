package claim_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/claim"
	"github.com/address-analyzer/internal/claim/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) claim.Store {
		return claim.NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) claim.Store {
		s, err := claim.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
		require.NoError(t, err)
		return s
	})
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	addr := "0x742d35cc6634c0532925a3b844bc454e4438f44e"

	first, err := claim.NewFileStore(path)
	require.NoError(t, err)
	_, err = first.SaveAnchorIfAbsent(ctx, addr, t0)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"claimStartTime": 1714564800000`)
	assert.Contains(t, string(raw), `"claimMade": true`)

	reopened, err := claim.NewFileStore(path)
	require.NoError(t, err)
	loaded, ok, err := reopened.LoadAnchor(ctx, addr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, t0.Equal(loaded))
}

func TestFileStore_Errors(t *testing.T) {
	_, err := claim.NewFileStore("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := claim.NewFileStore(path)
	require.NoError(t, err)
	_, _, err = s.LoadAnchor(context.Background(), "0x742d35cc6634c0532925a3b844bc454e4438f44e")
	assert.Error(t, err)
}
