package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterEnforcesBurstPerKey(t *testing.T) {
	limiter := New(0.001, 2, time.Minute)

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatalf("expected burst of two to be allowed")
	}
	if limiter.Allow("user-1") {
		t.Fatalf("expected third event to be limited")
	}
	if !limiter.Allow("user-2") {
		t.Fatalf("expected independent bucket for another key")
	}
}

func TestLimiterCollectsIdleKeys(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := New(1, 1, time.Minute)
	limiter.now = func() time.Time { return current }

	limiter.Allow("idle")
	current = current.Add(30 * time.Second)
	limiter.Allow("active")
	current = current.Add(45 * time.Second)
	limiter.collect()

	if limiter.size() != 1 {
		t.Fatalf("expected only the active key to remain, got %d", limiter.size())
	}
	limiter.Stop()
	limiter.Stop()
}
