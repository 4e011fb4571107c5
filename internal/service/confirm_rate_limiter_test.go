package service

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiterDeniesAboveLimit(t *testing.T) {
	limiter := NewLocalConfirmRateLimiter(ConfirmRatePolicy{Limit: 3, Window: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1", 42)
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1", 42)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("fourth attempt inside the window should be denied")
	}
}

func TestLocalLimiterKeysAreIsolated(t *testing.T) {
	limiter := NewLocalConfirmRateLimiter(ConfirmRatePolicy{Limit: 1, Window: time.Hour})
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "10.0.0.1", 42); !ok {
		t.Fatal("first attempt denied")
	}
	if ok, _ := limiter.Allow(ctx, "10.0.0.1", 42); ok {
		t.Fatal("same pair should be denied")
	}
	if ok, _ := limiter.Allow(ctx, "10.0.0.2", 42); !ok {
		t.Fatal("different caller IP should have its own budget")
	}
	if ok, _ := limiter.Allow(ctx, "10.0.0.1", 43); !ok {
		t.Fatal("different chat id should have its own budget")
	}
}

func TestLocalLimiterWindowSlides(t *testing.T) {
	limiter := NewLocalConfirmRateLimiter(ConfirmRatePolicy{Limit: 1, Window: 50 * time.Millisecond})
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "ip", 1); !ok {
		t.Fatal("first attempt denied")
	}
	if ok, _ := limiter.Allow(ctx, "ip", 1); ok {
		t.Fatal("second attempt inside window should be denied")
	}
	time.Sleep(60 * time.Millisecond)
	if ok, _ := limiter.Allow(ctx, "ip", 1); !ok {
		t.Fatal("attempt after window should be allowed again")
	}
}

func TestRedisLimiterDeniesAboveLimitAndRecovers(t *testing.T) {
	server, client := newRedisClientForTest(t)
	limiter := NewRedisConfirmRateLimiter(client, "confirm_test", ConfirmRatePolicy{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1", 9)
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1", 9)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("third attempt should be denied")
	}

	server.FastForward(2 * time.Minute)
	ok, err = limiter.Allow(ctx, "10.0.0.1", 9)
	if err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
	if !ok {
		t.Fatal("budget should reset once the window key expires")
	}
}

func TestRedisLimiterReportsBackendErrors(t *testing.T) {
	server, client := newRedisClientForTest(t)
	limiter := NewRedisConfirmRateLimiter(client, "confirm_test", ConfirmRatePolicy{Limit: 2, Window: time.Minute})

	server.Close()
	if _, err := limiter.Allow(context.Background(), "10.0.0.1", 9); err == nil {
		t.Fatal("expected an error when the backend is down")
	}
}
