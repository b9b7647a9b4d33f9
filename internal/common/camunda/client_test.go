package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "service-dispatch/internal/common/errors"
	"service-dispatch/internal/common/config"
	"service-dispatch/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("NOT_FOUND: job 42 not found"), false},
		{errors.New("permission denied"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableZeebeError(tt.err), "%v", tt.err)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 5000})
	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)

	cfg = ConfigFrom(config.CamundaConfig{})
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func newRetryClient(t *testing.T, maxRetries int) *Client {
	return &Client{
		config: &ClientConfig{RetryConfig: &RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   2 * time.Millisecond,
		}},
		log: logger.NewTestLogger(t),
	}
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	c := newRetryClient(t, 3)
	calls := 0
	err := c.withRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	c := newRetryClient(t, 3)
	calls := 0
	err := c.withRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		return errors.New("permission denied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	stdErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrCodeWorkflowEngine, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	c := newRetryClient(t, 2)
	calls := 0
	err := c.withRetry(context.Background(), "topology", func(context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperrors.FromError(err).Retryable)
}

func TestWithRetry_HonoursCancellation(t *testing.T) {
	c := newRetryClient(t, 5)
	c.config.RetryConfig.BaseDelay = time.Hour
	c.config.RetryConfig.MaxDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.withRetry(ctx, "topology", func(context.Context) error {
		return errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffCapped(t *testing.T) {
	rc := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 4*time.Second, backoff(rc, 2))
	assert.Equal(t, 5*time.Second, backoff(rc, 3))
}
