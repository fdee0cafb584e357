package gmail

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-user rate limiting so concurrent syncs
// for one mailbox do not exhaust its Gmail quota
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	config   RateLimitConfig
	stopCh   chan struct{}
}

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
	}
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	rl := &RateLimiter{
		limiters: make(map[string]*userLimiter),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request may proceed now
func (r *RateLimiter) Allow(userId string) bool {
	return r.get(userId).Allow()
}

// Wait blocks until a request is allowed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, userId string) error {
	return r.get(userId).Wait(ctx)
}

// Stop stops the cleanup goroutine
func (r *RateLimiter) Stop() {
	close(r.stopCh)
}

func (r *RateLimiter) get(userId string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	ul, ok := r.limiters[userId]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.BurstSize)}
		r.limiters[userId] = ul
	}
	ul.lastUsed = time.Now()
	return ul.limiter
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	staleThreshold := time.Now().Add(-r.config.CleanupInterval)
	for key, ul := range r.limiters {
		if ul.lastUsed.Before(staleThreshold) {
			delete(r.limiters, key)
		}
	}
}
