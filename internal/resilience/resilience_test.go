package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, time.Second, 30*time.Second), "attempt %d", tt.attempt)
	}
	assert.Equal(t, 8*time.Second, Backoff(3, time.Second, 0))
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, nil, func() error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, nil, func() error {
			calls++
			return errors.New("persistent")
		})
		require.Error(t, err)
		assert.Equal(t, cfg.MaxRetries+1, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		permanent := errors.New("bad request")
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func(err error) bool { return !errors.Is(err, permanent) }, func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := RetryWithBackoff(ctx, cfg, nil, func() error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Hour})
	boom := errors.New("boom")

	assert.ErrorIs(t, Call(cb, func() error { return boom }), boom)
	assert.ErrorIs(t, Call(cb, func() error { return boom }), boom)
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	ran := false
	err := Call(cb, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}
