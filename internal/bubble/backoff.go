package bubble

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetries bounds the retry loop per page fetch.
const maxRetries = 5

// linearBackOff waits attempt × interval between retries and stops after
// maxRetries. Bubble rate-limit responses clear on a schedule, not
// exponentially, so the original linear policy is kept.
type linearBackOff struct {
	interval time.Duration
	attempt  int
}

// BackOff implementations are stateful; always return a fresh instance.
func newLinearBackOff(interval time.Duration) backoff.BackOff {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &linearBackOff{interval: interval}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > maxRetries {
		return backoff.Stop
	}
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// statusError is a non-2xx response from the Data API.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bubble api status %d: %s", e.status, e.body)
}

// transportError wraps a network-level failure.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "bubble api transport: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}

// isRetryable reports whether a page fetch error is worth retrying: server
// errors, rate limiting, and network failures. Client errors (bad entity
// name, bad token) are permanent.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
