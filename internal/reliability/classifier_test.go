package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTPStatus(tc.code); got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableClassifiesCapabilityFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"overloaded backend", fmt.Errorf("send: %w", statusErr(http.StatusServiceUnavailable)), true},
		{"rejected input", statusErr(http.StatusUnprocessableEntity), false},
		{"network timeout", &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}}, true},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"truncated body", fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), true},
		{"malformed output", Wrap(fmt.Errorf("decode: %w", io.ErrUnexpectedEOF), KindMalformedCapabilityOutput), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	cases := map[int]time.Duration{0: base, 1: 200 * time.Millisecond, 2: 400 * time.Millisecond, 3: capDur, 10: capDur}
	for attempt, want := range cases {
		if got := ExponentialBackoff(attempt, base, capDur); got != want {
			t.Fatalf("attempt %d = %v, want %v", attempt, got, want)
		}
	}
}
