package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(10, 5)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on request %d within burst", i+1)
		}
	}
}

func TestBlockWhenDepleted(t *testing.T) {
	l := New(10, 2)
	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("expected rate limit after burst exhausted")
	}
}

func TestRefillOverTime(t *testing.T) {
	l := New(1000, 1) // 1000 rps, burst 1
	l.Allow()         // exhaust the burst
	time.Sleep(2 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("expected allow after refill")
	}
}

func TestBurstDefaultsToRate(t *testing.T) {
	l := New(3, 0)
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("expected allow on request %d within default burst", i+1)
		}
	}
	if l.Allow() {
		t.Fatal("expected rate limit after default burst exhausted")
	}
}
