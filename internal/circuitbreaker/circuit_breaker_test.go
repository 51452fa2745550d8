package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/address-analyzer/internal/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(&Config{Name: "model", MaxFailures: maxFailures, Timeout: 30 * time.Second, HalfOpenMaxCalls: 1})
	cb.now = clock.Now
	return cb, clock
}

var (
	upstreamDown = apperrors.NewUpstreamUnavailableError("model", errors.New("503"))
	badInput     = apperrors.NewInvalidAddressError("0x1")
)

func call(cb *CircuitBreaker, err error) error {
	return cb.Execute(context.Background(), func(context.Context) error { return err })
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)

	for i := 0; i < 2; i++ {
		assert.Equal(t, upstreamDown, call(cb, upstreamDown))
	}
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Equal(t, upstreamDown, call(cb, upstreamDown))
	assert.Equal(t, StateOpen, cb.GetState())

	executed := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		executed = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, executed)
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(2)

	_ = call(cb, upstreamDown)
	require.NoError(t, call(cb, nil))
	_ = call(cb, upstreamDown)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IgnoresUserErrors(t *testing.T) {
	cb, _ := newTestBreaker(1)

	for i := 0; i < 5; i++ {
		_ = call(cb, badInput)
		_ = call(cb, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().TotalFailures)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(1)

	_ = call(cb, upstreamDown)
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)

	clock.Advance(25 * time.Second)
	require.NoError(t, call(cb, nil))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)

	_ = call(cb, upstreamDown)
	clock.Advance(31 * time.Second)

	assert.Equal(t, upstreamDown, call(cb, upstreamDown))
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb, clock := newTestBreaker(1)
	_ = call(cb, upstreamDown)
	clock.Advance(31 * time.Second)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(probing)
			<-release
			return nil
		})
	}()

	<-probing
	assert.ErrorIs(t, call(cb, nil), ErrTooManyRequests)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_ManualControls(t *testing.T) {
	cb, _ := newTestBreaker(5)

	cb.ForceOpen()
	assert.Equal(t, StateOpen, cb.GetState())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())

	stats := cb.GetStats()
	assert.Equal(t, "model", stats.Name)
	assert.Equal(t, 0, stats.ConsecutiveFails)
}
