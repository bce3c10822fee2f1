package middleware

import (
	"testing"
	"time"
)

func TestKeyRateLimiterExhaustsBurst(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("key-1") {
			t.Fatalf("expected attempt %d within burst to pass", i+1)
		}
	}
	if limiter.Allow("key-1") {
		t.Fatal("expected attempt beyond burst to be rejected")
	}

	// Other keys are unaffected.
	if !limiter.Allow("key-2") {
		t.Fatal("expected independent budget per key")
	}
}

func TestKeyRateLimiterExpiresIdleEntries(t *testing.T) {
	raw := NewKeyRateLimiter(1, time.Hour, 1, time.Minute)
	limiter := raw.(*keyRateLimiter)

	base := time.Now()
	limiter.now = func() time.Time { return base }

	if !limiter.Allow("key-1") {
		t.Fatal("expected first attempt to pass")
	}
	if limiter.Allow("key-1") {
		t.Fatal("expected second attempt to be rejected")
	}

	limiter.now = func() time.Time { return base.Add(2 * time.Minute) }
	limiter.Allow("other")

	limiter.mu.Lock()
	_, ok := limiter.callers["key-1"]
	limiter.mu.Unlock()
	if ok {
		t.Fatal("expected idle entry to be garbage collected")
	}
}

func TestKeyRateLimiterEmptyKey(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 1, time.Minute)

	if !limiter.Allow("") {
		t.Fatal("expected first anonymous attempt to pass")
	}
	if limiter.Allow("") {
		t.Fatal("expected anonymous attempts to share one bucket")
	}
}
