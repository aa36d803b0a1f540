package policy

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("client-a"); !ok {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if ok, _ := rl.Allow("client-a"); !ok {
		t.Fatal("first request should be allowed")
	}
	ok, retryAfter := rl.Allow("client-a")
	if ok {
		t.Fatal("second immediate request should be rejected")
	}
	if retryAfter < 1 {
		t.Fatalf("retryAfter = %d, want >= 1", retryAfter)
	}
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if ok, _ := rl.Allow("client-a"); !ok {
		t.Fatal("client-a should be allowed")
	}
	if ok, _ := rl.Allow("client-b"); !ok {
		t.Fatal("client-b should be allowed independently of client-a")
	}
}

func TestSweepRemovesIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rl.idleTTL = time.Millisecond
	rl.Allow("client-a")
	time.Sleep(5 * time.Millisecond)
	rl.Sweep()
	rl.mu.Lock()
	_, exists := rl.limiters["client-a"]
	rl.mu.Unlock()
	if exists {
		t.Fatal("expected idle limiter to be swept")
	}
}
