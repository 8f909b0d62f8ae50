package service

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	MaxTokens  float64 // Maximum bucket capacity
	RefillRate float64 // Tokens added per second
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:  10,
		RefillRate: 1,
	}
}

// RateLimiterConfigFromRPM derives a bucket from a requests-per-minute budget.
// The burst equals the number of specialists that can start together.
func RateLimiterConfigFromRPM(rpm int, burst int) RateLimiterConfig {
	if rpm <= 0 {
		return DefaultRateLimiterConfig()
	}
	if burst <= 0 {
		burst = 1
	}
	return RateLimiterConfig{
		MaxTokens:  float64(burst),
		RefillRate: float64(rpm) / 60.0,
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		tokens:     cfg.MaxTokens,
		maxTokens:  cfg.MaxTokens,
		refillRate: cfg.RefillRate,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available or the context is done.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		// Time until the bucket holds one whole token
		waitTime := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire attempts to acquire a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// MaxTokens returns the bucket capacity.
func (r *RateLimiter) MaxTokens() float64 {
	return r.maxTokens
}

// RefillRate returns tokens added per second.
func (r *RateLimiter) RefillRate() float64 {
	return r.refillRate
}

// refill adds tokens based on elapsed time.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)
	r.lastRefill = now

	r.tokens = min(r.maxTokens, r.tokens+elapsed.Seconds()*r.refillRate)
}

// RateLimiterRegistry holds one limiter per task backend, so specialists that
// share a backend share its budget.
type RateLimiterRegistry struct {
	limiters map[string]*RateLimiter
	configs  map[string]RateLimiterConfig
	mu       sync.Mutex
}

// NewRateLimiterRegistry creates a new registry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		configs:  make(map[string]RateLimiterConfig),
	}
}

// Get returns the rate limiter for a backend, creating it on first use.
func (r *RateLimiterRegistry) Get(backend string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[backend]; ok {
		return limiter
	}

	cfg, ok := r.configs[backend]
	if !ok {
		cfg = DefaultRateLimiterConfig()
	}
	limiter := NewRateLimiter(cfg)
	r.limiters[backend] = limiter
	return limiter
}

// SetConfig updates the configuration for a backend.
func (r *RateLimiterRegistry) SetConfig(backend string, cfg RateLimiterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[backend] = cfg
	r.limiters[backend] = NewRateLimiter(cfg)
}

// RateLimiterStatus reports the state of one backend's bucket.
type RateLimiterStatus struct {
	Backend    string  `json:"backend"`
	Available  float64 `json:"available"`
	MaxTokens  float64 `json:"max_tokens"`
	RefillRate float64 `json:"refill_rate"`
}

// Status returns limiter status for all backends that have been used, sorted by name.
func (r *RateLimiterRegistry) Status() []RateLimiterStatus {
	r.mu.Lock()
	names := make([]string, 0, len(r.limiters))
	limiters := make(map[string]*RateLimiter, len(r.limiters))
	for name, l := range r.limiters {
		names = append(names, name)
		limiters[name] = l
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]RateLimiterStatus, 0, len(names))
	for _, name := range names {
		l := limiters[name]
		out = append(out, RateLimiterStatus{
			Backend:    name,
			Available:  l.Available(),
			MaxTokens:  l.MaxTokens(),
			RefillRate: l.RefillRate(),
		})
	}
	return out
}
