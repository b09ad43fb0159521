package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("persistent")
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(0), func() error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancellationWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      time.Second,
		BackoffFactor: 1.0,
	}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			calls++
			return errors.New("transient")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestWithAttempts(t *testing.T) {
	assert.Equal(t, 4, DefaultRetryConfig().WithAttempts(4).MaxAttempts)
	assert.Equal(t, 1, DefaultRetryConfig().WithAttempts(0).MaxAttempts)
	assert.Equal(t, 1, DefaultRetryConfig().WithAttempts(-2).MaxAttempts)
}

func TestCalculateBackoff(t *testing.T) {
	initial := 100 * time.Millisecond
	max := time.Second

	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, initial, max, 2.0))
	assert.Equal(t, 200*time.Millisecond, CalculateBackoff(1, initial, max, 2.0))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, initial, max, 2.0))
	// Clamped at the ceiling.
	assert.Equal(t, max, CalculateBackoff(10, initial, max, 2.0))
}
