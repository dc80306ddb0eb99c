package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: errors.New("context deadline exceeded"), want: true},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:9222: connect: connection refused"), want: true},
		{name: "bad gateway", err: errors.New("unexpected status 502"), want: true},
		{name: "rate limited", err: errors.New("HTTP 429 Too Many Requests"), want: true},
		{name: "unauthorized", err: errors.New("unexpected status 401"), want: false},
		{name: "rejected credentials", err: errors.New("login rejected: invalid credentials"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "dial error", err: fmt.Errorf("load page: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}), want: true},
		{name: "unknown", err: errors.New("something odd"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	callCount := 0
	result, err := Do(context.Background(), nil, Config{MaxAttempts: 3}, func(ctx context.Context) (string, error) {
		callCount++
		return "session", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "session", result)
	assert.Equal(t, 1, callCount)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	cfg := Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	result, err := Do(context.Background(), nil, cfg, func(ctx context.Context) (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, callCount)
}

func TestDo_AllFailures(t *testing.T) {
	expectedErr := errors.New("connection refused")
	cfg := Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	_, err := Do(context.Background(), nil, cfg, func(ctx context.Context) (string, error) {
		return "", expectedErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestDo_NonRetryableError(t *testing.T) {
	callCount := 0
	expectedErr := errors.New("login rejected: invalid credentials")

	_, err := Do(context.Background(), nil, Config{MaxAttempts: 5}, func(ctx context.Context) (string, error) {
		callCount++
		return "", expectedErr
	})

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, callCount)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second}

	callCount := 0
	_, err := Do(ctx, nil, cfg, func(ctx context.Context) (string, error) {
		callCount++
		cancel()
		return "", errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func TestCalculateBackoff_Values(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 500 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, initial, max))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, initial, max))
	assert.Equal(t, 400*time.Millisecond, calculateBackoff(2, initial, max))
	assert.Equal(t, max, calculateBackoff(3, initial, max))
}
