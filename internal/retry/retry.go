// Package retry provides a reusable exponential-backoff wrapper for a single
// provider call. A Policy carries the attempt budget and the retryable-error
// markers; Do runs the operation under the policy.
package retry

import (
	"context"
	"strings"
	"time"
)

// Default policy values applied by Policy.normalized.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 200 * time.Millisecond
	DefaultMaxDelay     = 5 * time.Second
	DefaultMultiplier   = 2.0
)

// DefaultRetryableMarkers matches the transient failure modes of HTTP LLM
// backends: timeouts, connection trouble, throttling, and 5xx responses.
var DefaultRetryableMarkers = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"rate limit",
	"too many requests",
	"overloaded",
	"unavailable",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// Policy configures the retry behavior for one wrapped call.
type Policy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponentially growing delay.
	MaxDelay time.Duration
	// Multiplier scales the delay after every failed attempt.
	Multiplier float64
	// RetryableMarkers are substrings matched case-insensitively against the
	// failure's message. An error matching none of them is not retried.
	RetryableMarkers []string
}

// DefaultPolicy returns the policy used when a deployment configures nothing.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      DefaultMaxAttempts,
		InitialDelay:     DefaultInitialDelay,
		MaxDelay:         DefaultMaxDelay,
		Multiplier:       DefaultMultiplier,
		RetryableMarkers: DefaultRetryableMarkers,
	}
}

// normalized returns a copy of p with defaults applied for zero values.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.RetryableMarkers == nil {
		p.RetryableMarkers = DefaultRetryableMarkers
	}
	return p
}

// Retryable reports whether err matches any of the policy's markers.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range p.RetryableMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Do runs op under the policy, returning the operation's own success/failure
// contract. On failure it returns immediately when the attempt budget is
// spent or the error is not retryable; otherwise it sleeps for the current
// delay and retries, growing the delay by Multiplier up to MaxDelay. The
// sleep suspends only the calling goroutine and honours ctx cancellation.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	delay := p.InitialDelay
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			return zero, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
