package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_Acquire(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  3,
		RefillRate: 10,
	})
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("first acquire should be immediate")
	}

	limiter.TryAcquire()
	limiter.TryAcquire()

	start = time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("acquire should wait for refill, elapsed = %v", elapsed)
	}
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  2,
		RefillRate: 0.1,
	})

	if !limiter.TryAcquire() {
		t.Error("first TryAcquire should succeed")
	}
	if !limiter.TryAcquire() {
		t.Error("second TryAcquire should succeed")
	}
	if limiter.TryAcquire() {
		t.Error("third TryAcquire should fail")
	}
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{
		MaxTokens:  1,
		RefillRate: 0.01,
	})
	limiter.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterConfigFromRPM(t *testing.T) {
	cfg := RateLimiterConfigFromRPM(120, 3)
	if cfg.MaxTokens != 3 {
		t.Errorf("MaxTokens = %v, want 3", cfg.MaxTokens)
	}
	if cfg.RefillRate != 2 {
		t.Errorf("RefillRate = %v, want 2", cfg.RefillRate)
	}

	if got := RateLimiterConfigFromRPM(0, 3); got != DefaultRateLimiterConfig() {
		t.Errorf("zero rpm = %+v, want default", got)
	}
	if got := RateLimiterConfigFromRPM(60, 0); got.MaxTokens != 1 {
		t.Errorf("zero burst MaxTokens = %v, want 1", got.MaxTokens)
	}
}

func TestRateLimiterRegistry_GetCreatesDefault(t *testing.T) {
	registry := NewRateLimiterRegistry()

	limiter := registry.Get("openai")
	if limiter == nil {
		t.Fatal("Get() returned nil")
	}
	if limiter.MaxTokens() != DefaultRateLimiterConfig().MaxTokens {
		t.Errorf("MaxTokens = %v, want default", limiter.MaxTokens())
	}
	if registry.Get("openai") != limiter {
		t.Error("Get should return the same limiter for the same backend")
	}
}

func TestRateLimiterRegistry_SetConfig(t *testing.T) {
	registry := NewRateLimiterRegistry()
	registry.SetConfig("local", RateLimiterConfig{MaxTokens: 2, RefillRate: 0.5})

	limiter := registry.Get("local")
	if limiter.MaxTokens() != 2 || limiter.RefillRate() != 0.5 {
		t.Errorf("limiter = (%v, %v), want (2, 0.5)", limiter.MaxTokens(), limiter.RefillRate())
	}
}

func TestRateLimiterRegistry_Status(t *testing.T) {
	registry := NewRateLimiterRegistry()
	registry.Get("zeta")
	registry.Get("alpha")

	status := registry.Status()
	if len(status) != 2 {
		t.Fatalf("len(Status()) = %d, want 2", len(status))
	}
	if status[0].Backend != "alpha" || status[1].Backend != "zeta" {
		t.Errorf("Status() order = %s,%s, want alpha,zeta", status[0].Backend, status[1].Backend)
	}
}
