package remote

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// isTransient reports whether err is worth retrying and should count against the circuit breaker.
// Server errors, throttling and transport failures are transient; client errors,
// cancellation and an open breaker are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, errTransport)
}

var errTransport = errors.New("transport failure")

// notDelivered reports whether err proves the request never reached the API:
// the connection could not be established. Only such failures may be retried
// for requests that are not idempotent.
func notDelivered(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// withRetry runs op with exponential backoff, at most cfg.MaxAttempts times in total.
// Errors rejected by retryable stop the loop immediately.
func withRetry[T any](ctx context.Context, cfg config.RetryConfig, retryable func(error) bool, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	b.MaxElapsedTime = 0

	var retries uint64
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}

// newCircuitBreaker creates a breaker that trips on consecutive transient failures or on a high error rate.
// Client errors such as 404 or 400 are not treated as failures of the remote store.
func newCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker[[]byte] {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures ||
				(counts.TotalSuccesses+counts.TotalFailures > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(counts.TotalSuccesses+counts.TotalFailures)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return !isTransient(err)
		},
	}
	return gobreaker.NewCircuitBreaker[[]byte](st)
}
