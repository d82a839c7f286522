package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterCheck(t *testing.T) {
	ctx := context.Background()
	window := time.Minute

	t.Run("admits below the limit and increments", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc, testLogger())

		for i := 1; i <= 3; i++ {
			allowed, count, err := rl.Check(ctx, "rate:u1", 5, window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !allowed {
				t.Fatalf("request %d should be admitted", i)
			}
			if count != i {
				t.Errorf("expected count %d, got %d", i, count)
			}
		}
	})

	t.Run("rejects at the limit without incrementing", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc, testLogger())

		for i := 0; i < 2; i++ {
			rl.Check(ctx, "rate:u1", 2, window)
		}
		allowed, count, _ := rl.Check(ctx, "rate:u1", 2, window)
		if allowed {
			t.Error("expected rejection at limit")
		}
		if count != 2 {
			t.Errorf("expected stored count 2, got %d", count)
		}
		if fc.values["rate:u1"] != "2" {
			t.Errorf("rejection must not increment, counter is %q", fc.values["rate:u1"])
		}
	})

	t.Run("attaches expiry only on the 0->1 transition", func(t *testing.T) {
		fc := newFakeClient()
		rl := NewRateLimiter(fc, testLogger())

		rl.Check(ctx, "rate:u1", 10, window)
		rl.Check(ctx, "rate:u1", 10, window)
		rl.Check(ctx, "rate:u1", 10, window)

		if got := fc.expireCalls["rate:u1"]; got != 1 {
			t.Errorf("expected exactly one EXPIRE, got %d", got)
		}
		if fc.ttls["rate:u1"] != window {
			t.Errorf("expected ttl %s, got %s", window, fc.ttls["rate:u1"])
		}
	})

	t.Run("fails open when the store is unreachable", func(t *testing.T) {
		fc := newFakeClient()
		fc.errGet = errors.New("connection refused")
		rl := NewRateLimiter(fc, testLogger())

		allowed, count, err := rl.Check(ctx, "rate:u1", 1, window)
		if err != nil {
			t.Fatalf("fail-open must not surface the store error, got %v", err)
		}
		if !allowed || count != 0 {
			t.Errorf("expected admit with count 0, got %v/%d", allowed, count)
		}
	})

	t.Run("fails open when unconfigured", func(t *testing.T) {
		rl := NewRateLimiter(nil, testLogger())
		allowed, _, err := rl.Check(ctx, "rate:u1", 1, window)
		if err != nil || !allowed {
			t.Errorf("nil client must admit, got %v/%v", allowed, err)
		}
	})
}
