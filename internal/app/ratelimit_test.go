package app

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryRateLimiter()
	limiter.now = func() time.Time { return now }

	for want := 1; want <= 3; want++ {
		count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "signin", "A@example.com", 5, time.Minute)
		if err != nil {
			t.Fatalf("ConsumeRateLimit returned error: %v", err)
		}
		if count != want || retryAfter != 60 {
			t.Fatalf("expected count %d retry 60, got %d %d", want, count, retryAfter)
		}
	}

	// Subjects are case-insensitive.
	if count, _, _ := limiter.ConsumeRateLimit(context.Background(), "signin", "a@example.com", 5, time.Minute); count != 4 {
		t.Fatalf("expected shared counter, got %d", count)
	}

	now = now.Add(time.Minute)
	if count, _, _ := limiter.ConsumeRateLimit(context.Background(), "signin", "a@example.com", 5, time.Minute); count != 1 {
		t.Fatalf("expected reset after window, got %d", count)
	}
}

func TestRateLimitersDisabledWithoutLimit(t *testing.T) {
	var redisLimiter *RedisRateLimiter
	if count, _, err := redisLimiter.ConsumeRateLimit(context.Background(), "signin", "x", 5, time.Minute); count != 0 || err != nil {
		t.Fatalf("expected nil redis limiter to be a no-op, got %d %v", count, err)
	}
	if count, _, _ := NewMemoryRateLimiter().ConsumeRateLimit(context.Background(), "signin", "x", 0, time.Minute); count != 0 {
		t.Fatalf("expected zero limit to disable counting, got %d", count)
	}
}

func TestRetryAfterFromMillis(t *testing.T) {
	cases := map[int64]int{0: 1, 1: 1, 999: 1, 1001: 2, 60000: 60}
	for ms, want := range cases {
		if got := retryAfterFromMillis(ms); got != want {
			t.Fatalf("retryAfterFromMillis(%d) = %d, want %d", ms, got, want)
		}
	}
}
