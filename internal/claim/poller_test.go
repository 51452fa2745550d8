package claim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// mockVerifier answers CheckAddress through a function field
type mockVerifier struct {
	calls   atomic.Int32
	checkFn func(ctx context.Context, n int) (*types.ChainAnalysis, error)
}

func (m *mockVerifier) CheckAddress(ctx context.Context, address string) (*types.ChainAnalysis, error) {
	n := int(m.calls.Add(1))
	return m.checkFn(ctx, n)
}

var analyzed = &types.ChainAnalysis{Category: 2, Explanation: "DeFi user", RoleID: "9", Analyzed: true}

func TestPoller_EventuallySucceedsAfterFailures(t *testing.T) {
	verifier := &mockVerifier{checkFn: func(ctx context.Context, n int) (*types.ChainAnalysis, error) {
		switch {
		case n <= 2:
			return nil, errors.New("connection refused")
		case n == 3:
			return &types.ChainAnalysis{Analyzed: false}, nil
		default:
			return analyzed, nil
		}
	}}

	var mu sync.Mutex
	var updates []types.VerificationState
	poller := NewPoller(verifier, testAddress, PollerConfig{
		Interval: 5 * time.Millisecond,
		Logger:   logging.NewNop(),
		OnUpdate: func(s types.VerificationState) {
			mu.Lock()
			updates = append(updates, s)
			mu.Unlock()
		},
	})
	assert.Equal(t, types.VerificationIdle, poller.State().Status)

	result, err := poller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, analyzed, result)
	assert.Equal(t, int32(4), verifier.calls.Load())

	state := poller.State()
	assert.Equal(t, types.VerificationSuccess, state.Status)
	assert.Equal(t, 4, state.Attempts)
	assert.Empty(t, state.LastError)
	assert.NotNil(t, state.LastCheckedAt)
	assert.Equal(t, analyzed, state.Result)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 5)
	assert.Equal(t, types.VerificationPolling, updates[0].Status)
	assert.Equal(t, types.VerificationError, updates[1].Status)
	assert.Equal(t, "connection refused", updates[1].LastError)
	assert.Equal(t, types.VerificationPolling, updates[3].Status)
	assert.Empty(t, updates[3].LastError)
}

func TestPoller_ChecksImmediately(t *testing.T) {
	verifier := &mockVerifier{checkFn: func(context.Context, int) (*types.ChainAnalysis, error) {
		return analyzed, nil
	}}
	poller := NewPoller(verifier, testAddress, PollerConfig{Interval: time.Hour, Logger: logging.NewNop()})

	start := time.Now()
	_, err := poller.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	verifier := &mockVerifier{checkFn: func(context.Context, int) (*types.ChainAnalysis, error) {
		return nil, errors.New("rpc down")
	}}
	poller := NewPoller(verifier, testAddress, PollerConfig{Interval: 5 * time.Millisecond, Logger: logging.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for verifier.calls.Load() < 3 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	result, err := poller.Run(ctx)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.VerificationError, poller.State().Status)
}

func TestPoller_BoundsEachCall(t *testing.T) {
	verifier := &mockVerifier{checkFn: func(ctx context.Context, n int) (*types.ChainAnalysis, error) {
		if n == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return analyzed, nil
	}}
	poller := NewPoller(verifier, testAddress, PollerConfig{
		Interval:    5 * time.Millisecond,
		CallTimeout: 10 * time.Millisecond,
		Logger:      logging.NewNop(),
	})

	result, err := poller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, analyzed, result)
	assert.Equal(t, 2, poller.State().Attempts)
}
