package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := NewLimiter(0.001, 2)

	if !l.Allow("1.2.3.4") || !l.Allow("1.2.3.4") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("expected third request to be denied")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("expected other keys to have their own bucket")
	}
}

func TestLimiter_EvictsIdleKeys(t *testing.T) {
	l := NewLimiter(1, 1)
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	l.Allow("a")
	current = current.Add(time.Minute)
	l.Allow("b")

	current = current.Add(4*time.Minute + 30*time.Second)
	l.evict()

	if l.Len() != 1 {
		t.Fatalf("expected 1 visitor after eviction, got %d", l.Len())
	}
}
