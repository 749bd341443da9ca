package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server error", err: &StatusError{StatusCode: http.StatusBadGateway}, want: true},
		{name: "throttled", err: fmt.Errorf("wrapped: %w", &StatusError{StatusCode: http.StatusTooManyRequests}), want: true},
		{name: "client error", err: &StatusError{StatusCode: http.StatusNotFound}, want: false},
		{name: "transport", err: fmt.Errorf("%w: connection refused", errTransport), want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("op: %w", context.DeadlineExceeded), want: false},
		{name: "open breaker", err: gobreaker.ErrOpenState, want: false},
		{name: "malformed payload", err: ErrMalformedResponse, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}

func TestNotDelivered(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection refused", err: fmt.Errorf("%w: %w", errTransport, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), want: true},
		{name: "reset while reading", err: fmt.Errorf("%w: %w", errTransport, &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}), want: false},
		{name: "body read failure", err: fmt.Errorf("%w: read body: unexpected EOF", errTransport), want: false},
		{name: "server error", err: &StatusError{StatusCode: http.StatusInternalServerError}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, notDelivered(tc.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	cfg := config.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	t.Run("success after transient failures", func(t *testing.T) {
		calls := 0
		v, err := withRetry(context.Background(), cfg, isTransient, func() (string, error) {
			calls++
			if calls < 3 {
				return "", errTransport
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		permanent := &StatusError{StatusCode: http.StatusBadRequest}
		_, err := withRetry(context.Background(), cfg, isTransient, func() (string, error) {
			calls++
			return "", permanent
		})
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.Equal(t, 1, calls)
	})

	t.Run("single attempt", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), config.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}, isTransient, func() (int, error) {
			calls++
			return 0, errTransport
		})
		assert.True(t, errors.Is(err, errTransport))
		assert.Equal(t, 1, calls)
	})

	t.Run("server errors are final when only undelivered requests retry", func(t *testing.T) {
		calls := 0
		_, err := withRetry(context.Background(), cfg, notDelivered, func() (int, error) {
			calls++
			return 0, &StatusError{StatusCode: http.StatusServiceUnavailable}
		})
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
		assert.Equal(t, 1, calls)
	})
}
