package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3}, func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1", calls)
	}
}

func TestDoRetriesTransientError(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	got, err := Do(context.Background(), p, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("got %q, want recovered", got)
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	_, err := Do(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid api key")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (non-retryable)", calls)
	}
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	p := Policy{MaxAttempts: 3, InitialDelay: 10 * time.Second}
	_, err := Do(ctx, p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d calls, want 1 (no retry after cancellation)", calls)
	}
}

func TestDoBackoffGrowsAndCaps(t *testing.T) {
	var gaps []time.Duration
	var last time.Time
	p := Policy{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2,
	}
	_, _ = Do(context.Background(), p, func(_ context.Context) (int, error) {
		now := time.Now()
		if !last.IsZero() {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		return 0, errors.New("503")
	})

	if len(gaps) != 3 {
		t.Fatalf("got %d retry gaps, want 3", len(gaps))
	}
	// Expected delays: 10ms, 20ms, 20ms (capped). Allow generous slack above
	// the minimum; only the lower bound is deterministic.
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}
	for i, gap := range gaps {
		if gap < want[i] {
			t.Errorf("gap %d = %v, want at least %v", i+1, gap, want[i])
		}
	}
}

func TestRetryableMatchesCaseInsensitively(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("Rate Limit exceeded"), true},
		{errors.New("request TIMEOUT after 30s"), true},
		{errors.New("upstream returned 503"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("model not found"), false},
		{errors.New("invalid api key"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := p.Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryableCustomMarkers(t *testing.T) {
	p := Policy{RetryableMarkers: []string{"flaky"}}
	if !p.Retryable(fmt.Errorf("backend is flaky today")) {
		t.Error("expected custom marker to match")
	}
	if p.Retryable(errors.New("timeout")) {
		t.Error("expected default markers to be replaced, not extended")
	}
}

func TestDefaultPolicyValues(t *testing.T) {
	p := DefaultPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("got MaxAttempts %d, want 3", p.MaxAttempts)
	}
	if p.InitialDelay != 200*time.Millisecond {
		t.Errorf("got InitialDelay %v, want 200ms", p.InitialDelay)
	}
	if p.MaxDelay != 5*time.Second {
		t.Errorf("got MaxDelay %v, want 5s", p.MaxDelay)
	}
	if p.Multiplier != 2.0 {
		t.Errorf("got Multiplier %v, want 2.0", p.Multiplier)
	}
}
