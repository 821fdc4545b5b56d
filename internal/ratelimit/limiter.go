// Package ratelimit implements the per-worker token bucket that paces portal requests.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Config holds rate limiter configuration: at most MaxRequests per Per.
type Config struct {
	MaxRequests int
	Per         time.Duration
}

// DefaultConfig allows 100 requests every 3 seconds.
func DefaultConfig() Config {
	return Config{MaxRequests: 100, Per: 3 * time.Second}
}

// Limiter paces one worker's requests. It is safe for concurrent use by the
// goroutines of that worker and is never shared between workers.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter. A non-positive MaxRequests or Per disables limiting.
func New(cfg Config) *Limiter {
	if cfg.MaxRequests <= 0 || cfg.Per <= 0 {
		return &Limiter{bucket: rate.NewLimiter(rate.Inf, 1)}
	}
	r := rate.Limit(float64(cfg.MaxRequests) / cfg.Per.Seconds())
	return &Limiter{bucket: rate.NewLimiter(r, cfg.MaxRequests)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}
