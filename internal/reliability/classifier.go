package reliability

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// HTTPStatusCarrier is implemented by errors built from a non-2xx backend answer.
type HTTPStatusCarrier interface {
	HTTPStatus() int
}

// IsRetryableHTTPStatus reports whether a backend answer is worth another attempt.
func IsRetryableHTTPStatus(code int) bool {
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

// IsRetryable classifies a failed capability call. Cancellation and errors
// already marked malformed are final; retryable statuses, network timeouts,
// refused or reset connections and truncated bodies are transient.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if HasKind(err, KindMalformedCapabilityOutput) {
		return false
	}
	var sc HTTPStatusCarrier
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatus())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
