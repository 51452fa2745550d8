package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/address-analyzer/internal/errors"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoff_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return apperrors.NewUpstreamUnavailableError("model", errors.New("503"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	malformed := apperrors.NewUpstreamMalformedError("model", errors.New("no text"))
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return malformed
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.Same(t, malformed, result.LastError)
}

func TestWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewUpstreamUnavailableError("model", errors.New("reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperrors.Is(err, apperrors.CategoryUpstreamUnavailable))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithExponentialBackoff_CustomPredicate(t *testing.T) {
	cfg := fastConfig(4)
	cfg.Retryable = func(error) bool { return true }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("plain")
	})
	assert.False(t, result.Success)
	assert.Equal(t, 4, calls)
}

func TestWithExponentialBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan *RetryResult, 1)
	go func() {
		done <- WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
			return apperrors.NewUpstreamUnavailableError("model", errors.New("down"))
		})
	}()
	cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.ErrorIs(t, result.LastError, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, calculateDelay(cfg, 3))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Nil(t, cfg.Retryable)

	calls := 0
	_ = Do(context.Background(), &RetryConfig{MaxAttempts: 0}, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, calls)
}
