package retry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// RateLimitedError wraps a provider rate-limit response together with
// its retry-after hint so the executor can honor it.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// RetryAfter extracts a retry-after hint from anywhere in the error
// chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// httpStatuser is implemented by errors that originate from an HTTP
// response, e.g. store.APIError.
type httpStatuser interface {
	HTTPStatus() int
}

func httpStatus(err error) (int, bool) {
	var se httpStatuser
	if errors.As(err, &se) {
		return se.HTTPStatus(), true
	}
	return 0, false
}

var rateLimitPhrases = []string{
	"rate limit", "ratelimit", "rate_limit", "too many requests", "429",
}

var connectionPhrases = []string{
	"connection", "timeout", "timed out", "network", "unreachable",
	"connection reset", "connection refused", "no route to host", "broken pipe",
}

var temporaryPhrases = []string{
	"temporary", "try again", "overloaded",
	"server error", "internal server error", "service unavailable",
}

func matchesAny(err error, phrases []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRateLimitError reports whether err indicates throttling by the
// remote service.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return true
	}
	if status, ok := httpStatus(err); ok && status == http.StatusTooManyRequests {
		return true
	}
	return matchesAny(err, rateLimitPhrases)
}

// IsConnectionError reports whether err indicates a network-level
// failure (unreachable host, reset, timeout).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return matchesAny(err, connectionPhrases)
}

// IsTemporaryError reports whether err is likely transient and worth
// retrying: rate limiting, connection failures, HTTP 5xx, or known
// transient phrasing. "Already exists" and "not found" conditions are
// deliberately not temporary; callers treat those as terminal outcomes.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) || IsConnectionError(err) {
		return true
	}
	if status, ok := httpStatus(err); ok && status >= 500 && status < 600 {
		return true
	}
	return matchesAny(err, temporaryPhrases)
}
