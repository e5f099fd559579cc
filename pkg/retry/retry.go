// Package retry provides an exponential-backoff executor for fallible
// operations, plus the error classification used to decide whether a
// failure is worth retrying at all.
package retry

import (
	"math/rand"
	"time"

	"github.com/slacklytics/slacklytics/pkg/logger"
)

// Policy describes how an operation is retried. The zero value is not
// usable; start from DefaultPolicy and override fields as needed.
type Policy struct {
	// MaxRetries is the number of re-attempts after the initial call,
	// so an always-failing operation runs MaxRetries+1 times.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Jitter randomizes each wait to backoff * uniform(0.5, 1.5) to
	// avoid synchronized retry storms.
	Jitter bool

	// ShouldRetry decides whether an error is worth another attempt.
	// nil retries every error.
	ShouldRetry func(error) bool

	// OnRetry is invoked before each wait with the attempt number
	// (1-based), the error, and the computed wait.
	OnRetry func(attempt int, err error, wait time.Duration)

	// Test hooks. nil means time.Sleep / math/rand.
	sleep func(time.Duration)
	randf func() float64
}

// DefaultPolicy mirrors the ingestion defaults: 5 retries starting at
// 1s, doubling up to 60s, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Do invokes op until it succeeds, is classified non-retryable, or the
// retry budget is exhausted. The original error is always returned
// unwrapped; Do never substitutes its own error. Waits block the
// calling goroutine; callers needing concurrency run independent
// policies on separate goroutines.
func (p Policy) Do(op func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	randf := p.randf
	if randf == nil {
		randf = rand.Float64
	}

	backoff := p.InitialBackoff
	retries := 0
	for {
		err := op()
		if err == nil {
			return nil
		}

		retries++
		if retries > p.MaxRetries {
			logger.L().Error("giving up after retries", "retries", p.MaxRetries, "err", err)
			return err
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			logger.L().Warn("not retrying error", "err", err)
			return err
		}

		wait := backoff
		if p.Jitter {
			wait = time.Duration(float64(backoff) * (0.5 + randf()))
		}
		// A rate-limit response can carry an explicit retry-after hint;
		// never wait less than the server asked for.
		if ra, ok := RetryAfter(err); ok && ra > wait {
			wait = ra
		}

		if p.OnRetry != nil {
			p.OnRetry(retries, err, wait)
		}
		logger.L().Warn("retrying after error",
			"attempt", retries, "max_retries", p.MaxRetries, "wait", wait, "err", err)

		sleep(wait)

		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}
