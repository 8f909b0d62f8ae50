package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// RetryPolicy retries retryable backend errors with exponential backoff.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64 // 0.0 to 1.0
	Multiplier   float64 // Exponential factor
}

// DefaultRetryPolicy returns a default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.2,
		Multiplier:   2.0,
	}
}

// RetryPolicyOption configures a retry policy.
type RetryPolicyOption func(*RetryPolicy)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryPolicyOption {
	return func(p *RetryPolicy) {
		if n < 1 {
			n = 1
		}
		p.MaxAttempts = n
	}
}

// WithBaseDelay sets the initial delay.
func WithBaseDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the maximum delay.
func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.MaxDelay = d
	}
}

// WithJitter sets the jitter factor.
func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.JitterFactor = factor
	}
}

// WithMultiplier sets the exponential factor.
func WithMultiplier(m float64) RetryPolicyOption {
	return func(p *RetryPolicy) {
		p.Multiplier = m
	}
}

// NewRetryPolicy creates a new retry policy.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// RetryNotifyFunc is called before each retry.
type RetryNotifyFunc func(attempt int, err error, delay time.Duration)

// Execute runs the function with retry logic.
func (p *RetryPolicy) Execute(ctx context.Context, fn RetryableFunc) error {
	_, err := p.ExecuteWithNotify(ctx, fn, nil)
	return err
}

// ExecuteWithNotify runs with retry and notifications. It returns the number
// of attempts made.
func (p *RetryPolicy) ExecuteWithNotify(ctx context.Context, fn RetryableFunc, notify RetryNotifyFunc) (int, error) {
	var lastErr error
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !core.IsRetryable(err) || attempt == maxAttempts {
			if attempt > 1 && core.IsRetryable(err) {
				return attempt, &RetryExhaustedError{Attempts: attempt, LastErr: err}
			}
			return attempt, err
		}

		delay := p.CalculateDelay(attempt)
		if notify != nil {
			notify(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return maxAttempts, lastErr
}

// CalculateDelay computes the delay for a given attempt.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delay := p.CalculateDelayNoJitter(attempt)
	if p.JitterFactor > 0 {
		return time.Duration(addJitter(float64(delay), p.JitterFactor))
	}
	return delay
}

// CalculateDelayNoJitter computes the delay without jitter (for testing).
func (p *RetryPolicy) CalculateDelayNoJitter(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// addJitter adds random jitter to a delay.
func addJitter(delay float64, factor float64) float64 {
	jitter := delay * factor
	return delay + (rand.Float64()*2-1)*jitter
}

// RetryExhaustedError indicates all retry attempts failed.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var target *RetryExhaustedError
	return errors.As(err, &target)
}
