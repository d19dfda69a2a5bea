// Package usage implements the per-provider quota gate. A Tracker answers
// whether a request may proceed for a given provider and accumulates token
// consumption after successful generations.
//
// Quotas are windowed token budgets; an optional requests-per-second token
// bucket can sit alongside them. State is process-local and keyed by provider
// name; there is no cross-process coordination.
package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/relaylabs/dispatch/internal/ratelimit"
)

// DefaultWindow is used when a limit does not set one.
const DefaultWindow = time.Minute

// Limit configures the quota for one provider. A zero TokenLimit means the
// token budget is unlimited; a zero RequestsPerSecond disables the rate gate.
type Limit struct {
	TokenLimit        int
	Window            time.Duration
	RequestsPerSecond float64
	Burst             float64
}

// Snapshot is a point-in-time view of one provider's consumption.
type Snapshot struct {
	TokensUsed    int       `json:"tokens_used"`
	TokenLimit    int       `json:"token_limit"`
	WindowResetAt time.Time `json:"window_reset_at,omitzero"`
}

type record struct {
	tokens      int
	windowStart time.Time
	bucket      *ratelimit.Limiter
}

// Tracker gates dispatch on per-provider quotas. All methods are safe for
// concurrent use; counter updates for the same provider are serialized so
// concurrent requests cannot lose consumption.
type Tracker struct {
	mu      sync.Mutex
	limits  map[string]Limit
	records map[string]*record
}

// NewTracker creates a Tracker with the given per-provider limits. Providers
// absent from the map are unrestricted.
func NewTracker(limits map[string]Limit) *Tracker {
	if limits == nil {
		limits = make(map[string]Limit)
	}
	return &Tracker{
		limits:  limits,
		records: make(map[string]*record),
	}
}

// recordFor returns (creating if needed) the record for name.
// Must be called with t.mu held.
func (t *Tracker) recordFor(name string, limit Limit) *record {
	rec, ok := t.records[name]
	if !ok {
		rec = &record{windowStart: time.Now()}
		if limit.RequestsPerSecond > 0 {
			rec.bucket = ratelimit.New(limit.RequestsPerSecond, limit.Burst)
		}
		t.records[name] = rec
	}
	return rec
}

// rollWindow resets the token counter when the window has elapsed.
// Must be called with t.mu held.
func rollWindow(rec *record, window time.Duration) {
	if window <= 0 {
		window = DefaultWindow
	}
	if time.Since(rec.windowStart) >= window {
		rec.tokens = 0
		rec.windowStart = time.Now()
	}
}

// CanMakeRequest reports whether a request may proceed for the named
// provider. When denied, reason describes the exhausted budget.
func (t *Tracker) CanMakeRequest(name string) (allowed bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := t.limits[name]
	if !ok {
		return true, ""
	}
	rec := t.recordFor(name, limit)
	rollWindow(rec, limit.Window)

	if limit.TokenLimit > 0 && rec.tokens >= limit.TokenLimit {
		window := limit.Window
		if window <= 0 {
			window = DefaultWindow
		}
		return false, fmt.Sprintf("provider %s exhausted its token budget (%d/%d per %s)",
			name, rec.tokens, limit.TokenLimit, window)
	}
	if rec.bucket != nil && !rec.bucket.Allow() {
		return false, fmt.Sprintf("provider %s exceeded %g requests/sec", name, limit.RequestsPerSecond)
	}
	return true, ""
}

// TrackUsage records tokens consumed by a successful generation against the
// provider that produced the response.
func (t *Tracker) TrackUsage(name string, tokens int) {
	if tokens < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.limits[name]
	rec := t.recordFor(name, limit)
	rollWindow(rec, limit.Window)
	rec.tokens += tokens
}

// Snapshots returns per-provider consumption for the status surface.
func (t *Tracker) Snapshots() map[string]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Snapshot, len(t.records))
	for name, rec := range t.records {
		limit := t.limits[name]
		window := limit.Window
		if window <= 0 {
			window = DefaultWindow
		}
		out[name] = Snapshot{
			TokensUsed:    rec.tokens,
			TokenLimit:    limit.TokenLimit,
			WindowResetAt: rec.windowStart.Add(window),
		}
	}
	return out
}
