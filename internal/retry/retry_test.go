package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		IsRetryable:  func(error) bool { return true },
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	cause := errors.New("still broken")
	err := retry.Do(context.Background(), fastConfig(2), func(context.Context) error { return cause })

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	require.ErrorIs(t, err, cause)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := fastConfig(5)
	cfg.IsRetryable = func(error) bool { return false }

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, fastConfig(3), func(context.Context) error { return nil })
	require.ErrorIs(t, err, retry.ErrContextCancelled)
}

func TestBackoff_Caps(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, retry.Backoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, retry.Backoff(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, retry.Backoff(cfg, 3))
}

func TestDefaultIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, retry.DefaultIsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.True(t, retry.DefaultIsRetryable(context.DeadlineExceeded))
	assert.False(t, retry.DefaultIsRetryable(errors.New("invalid api key")))
	assert.False(t, retry.DefaultIsRetryable(nil))
}
