package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

func TestRetryPolicy_Execute_Success(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_SuccessAfterRetry(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
	)

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return core.ErrRateLimit("backend busy")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
}

func TestRetryPolicy_Execute_NonRetryable(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return core.ErrAuth("bad key")
	})

	if !core.IsCategory(err, core.ErrCatAuth) {
		t.Errorf("Execute() error = %v, want auth error", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1 (auth errors are not retried)", callCount)
	}
}

func TestRetryPolicy_Execute_PlainErrorNotRetried(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))

	callCount := 0
	plain := errors.New("boom")
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return plain
	})

	if !errors.Is(err, plain) {
		t.Errorf("Execute() error = %v, want %v", err, plain)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_Exhausted(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
	)

	callCount := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return core.ErrNetwork("connection reset")
	})

	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error should be RetryExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !core.IsCategory(err, core.ErrCatNetwork) {
		t.Error("exhausted error should still unwrap to the network error")
	}
	if !IsRetryExhausted(err) {
		t.Error("IsRetryExhausted() = false")
	}
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	policy := NewRetryPolicy(
		WithBaseDelay(time.Second),
		WithMaxDelay(30*time.Second),
		WithMultiplier(2.0),
		WithJitter(0),
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{9, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_JitterBounds(t *testing.T) {
	policy := NewRetryPolicy(
		WithBaseDelay(time.Second),
		WithJitter(0.2),
	)

	base := float64(time.Second)
	for i := 0; i < 100; i++ {
		delay := float64(policy.CalculateDelay(1))
		if delay < base*0.8 || delay > base*1.2 {
			t.Fatalf("delay %v out of jitter range", time.Duration(delay))
		}
	}
}

func TestRetryPolicy_ContextCancellation(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(5),
		WithBaseDelay(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, func(ctx context.Context) error {
		return core.ErrTimeout("slow backend")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestRetryPolicy_ExecuteWithNotify(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
	)

	var notified []int
	attempts, err := policy.ExecuteWithNotify(context.Background(), func(ctx context.Context) error {
		return core.ErrTimeout("slow backend")
	}, func(attempt int, err error, delay time.Duration) {
		notified = append(notified, attempt)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(notified) != 2 || notified[0] != 1 || notified[1] != 2 {
		t.Errorf("notifications = %v, want [1 2]", notified)
	}
}

func TestWithMaxAttempts_FloorsAtOne(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(0))
	if policy.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", policy.MaxAttempts)
	}
}
