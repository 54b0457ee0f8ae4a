package channel

import (
	"testing"
	"time"
)

func TestRateLimiter_ImmediateBurst(t *testing.T) {
	rl := NewRateLimiter(5, 60.0)
	for i := 0; i < 5; i++ {
		if !rl.Allow("a") {
			t.Fatalf("burst token %d refused", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("sixth message should be refused")
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(1, 600.0) // 10 per second
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first message refused")
	}
	if rl.Allow("a") {
		t.Fatal("bucket should be empty")
	}
	now = now.Add(200 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("token should refill after 200ms")
	}
}

func TestRateLimiter_PerChat(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	rl.Allow("a")
	if rl.Allow("a") {
		t.Fatal("chat a should be throttled")
	}
	if !rl.Allow("b") {
		t.Fatal("chat b has its own bucket")
	}
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten chat starts with a full bucket")
	}
}

func TestRateLimiter_NilAllows(t *testing.T) {
	var rl *RateLimiter
	if !rl.Allow("a") {
		t.Fatal("nil limiter should allow")
	}
	rl.Forget("a")
}
