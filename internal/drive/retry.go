package drive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
)

const (
	requestInterval   = 100 * time.Millisecond
	requestBurstLimit = 1
)

var driveLimiter = rate.NewLimiter(rate.Every(requestInterval), requestBurstLimit)

// retryPolicy bounds the retry loop. Tests shrink the delays.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

var defaultRetry = retryPolicy{attempts: 5, baseDelay: time.Second, maxDelay: 30 * time.Second}

// doDriveRequest runs one Drive API call under the shared rate limit,
// retrying transient failures with exponential backoff. A Retry-After header
// from the API overrides the computed backoff. A transient failure that
// survives every attempt surfaces as ErrUpstreamUnavailable; non-transient
// failures return unchanged after the first attempt.
func doDriveRequest[T any](ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	return doDriveRequestPolicy(ctx, defaultRetry, operation, fn)
}

func doDriveRequestPolicy[T any](ctx context.Context, policy retryPolicy, operation string, fn func() (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := policy.baseDelay
	for attempt := 1; ; attempt++ {
		if err := driveLimiter.Wait(ctx); err != nil {
			return zero, err
		}

		value, err := fn()
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		transient, retryAfter := shouldRetry(err)
		if !transient {
			return zero, err
		}
		if attempt >= policy.attempts {
			return zero, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, operation, err)
		}

		wait := backoff
		if retryAfter > wait {
			wait = retryAfter
		}
		if wait <= 0 {
			wait = policy.baseDelay
		}

		log.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Drive request failed; retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, policy.maxDelay)
	}
}

func shouldRetry(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, 0
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		retryAfter := retryAfterDuration(apiErr.Header)
		if isRetryableStatus(apiErr.Code) || isRetryableReason(apiErr.Errors) {
			return true, retryAfter
		}
		return false, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, 0
	}

	return false, 0
}

func retryAfterDuration(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 {
			return delay
		}
	}
	return 0
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Daily-quota reasons (dailyLimitExceeded, quotaExceeded) are excluded:
// they do not clear within a backoff window.
func isRetryableReason(items []googleapi.ErrorItem) bool {
	for _, item := range items {
		switch strings.ToLower(strings.TrimSpace(item.Reason)) {
		case "ratelimitexceeded",
			"userratelimitexceeded",
			"backenderror",
			"internalerror":
			return true
		default:
		}
	}
	return false
}
