package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

func TestRetry(t *testing.T) {
	logger := logging.NewNoOpLogger()

	tests := []struct {
		name          string
		failures      int
		maxRetries    int
		expectError   bool
		expectedCalls int
	}{
		{name: "success on first try", failures: 0, maxRetries: 3, expectedCalls: 1},
		{name: "success after retries", failures: 2, maxRetries: 3, expectedCalls: 3},
		{name: "failure after all retries", failures: 5, maxRetries: 3, expectError: true, expectedCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := Retry(context.Background(), func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errors.New("rpc unavailable")
				}
				return "ok", nil
			}, fastConfig(tt.maxRetries), logger)

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed after 3 attempts")
				assert.Empty(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", result)
		})
	}
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	permanent := errors.New("malformed payload")
	calls := 0

	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error, attempt int) bool {
		return !errors.Is(err, permanent)
	}

	err := Do(context.Background(), func() error {
		calls++
		return permanent
	}, cfg, nil)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_WrapsLastError(t *testing.T) {
	sentinel := errors.New("boom")
	err := Do(context.Background(), func() error { return sentinel }, fastConfig(2), nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, func() (int, error) {
		calls++
		return 0, nil
	}, fastConfig(3), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetry_InvalidConfig(t *testing.T) {
	_, err := Retry(context.Background(), func() (int, error) { return 1, nil }, &Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid retry config")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.JitterFactor = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.BackoffFactor = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxDelay = time.Millisecond
	assert.Error(t, bad.Validate())
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, nextDelay(10*time.Millisecond, 2, time.Second))
	assert.Equal(t, time.Second, nextDelay(800*time.Millisecond, 2, time.Second))
}

func TestDelayWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := delayWithJitter(base, 0.2)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+20*time.Millisecond+time.Nanosecond)
	}
	assert.Equal(t, base, delayWithJitter(base, 0))
}
