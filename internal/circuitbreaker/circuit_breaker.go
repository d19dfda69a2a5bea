// Package circuitbreaker implements the circuit-breaker pattern for provider
// calls. Each provider has its own Breaker instance, keyed by provider name
// at the dispatcher level.
//
// State transitions:
//
//	Closed → Open       when consecutive failures ≥ FailureThreshold
//	Open → HalfOpen     after Timeout elapses; one probe call is admitted
//	HalfOpen → Closed   when the probe succeeds (failure count reset to 0)
//	HalfOpen → Open     when the probe fails (open timer reset)
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the breaker's current state.
type State int

const (
	// StateClosed — normal operation; requests pass through.
	StateClosed State = iota
	// StateOpen — provider is considered failing; requests are rejected
	// without invoking it.
	StateOpen
	// StateHalfOpen — the breaker is testing recovery with a single probe.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker guards a single downstream provider. All methods are safe for
// concurrent use; updates for the same provider are serialized on the
// internal mutex so concurrent failures cannot lose counts.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	failureThreshold int
	timeout          time.Duration
	openedAt         time.Time
	probing          bool // a half-open probe is in flight
}

// Snapshot is a point-in-time view of a breaker for status reporting.
type Snapshot struct {
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at,omitzero"`
}

// New creates a Breaker with the given failure threshold and open timeout.
// Defaults are applied for zero/negative values: failureThreshold=5,
// timeout=60s.
func New(failureThreshold int, timeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		timeout:          timeout,
	}
}

// resolveState applies the Open→HalfOpen transition once the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) resolveState() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.timeout {
		b.state = StateHalfOpen
		b.probing = false
	}
	return b.state
}

// State returns the current state, transitioning Open→HalfOpen if the
// timeout has elapsed. Inspecting the state never consumes the probe slot.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveState()
}

// Allow reports whether a request may proceed. In the half-open state only
// one probe is admitted per window: the first caller takes the probe slot
// and concurrent contenders are rejected until the probe resolves via
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.resolveState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default: // StateOpen
		return false
	}
}

// RecordSuccess notifies the breaker that a call succeeded. A successful
// half-open probe closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.probing = false
		b.openedAt = time.Time{}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure notifies the breaker that a call failed. A failed half-open
// probe reopens the circuit and restarts the open timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probing = false
	}
}

// Snapshot returns a point-in-time view for dashboards.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.resolveState()
	return Snapshot{
		State:        state,
		FailureCount: b.failureCount,
		OpenedAt:     b.openedAt,
	}
}
