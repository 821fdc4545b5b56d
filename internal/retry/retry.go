// Package retry decides when a failed portal request is attempted again.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Policy decides whether to retry after a failed attempt and how long to wait.
// attempt counts the attempts already made, starting at 1.
type Policy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Exponential retries transient failures with jittered exponential backoff.
type Exponential struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponential builds a policy allowing at most maxAttempts attempts.
// maxAttempts <= 0 retries transient failures forever without backoff.
func NewExponential(maxAttempts int, base, maxDelay time.Duration) *Exponential {
	if maxDelay < base {
		maxDelay = base
	}
	return &Exponential{maxAttempts: maxAttempts, baseDelay: base, maxDelay: maxDelay}
}

// Unlimited retries transient failures immediately and forever.
func Unlimited() *Exponential {
	return &Exponential{}
}

// Default is the policy used when none is configured.
func Default() *Exponential {
	return NewExponential(8, 250*time.Millisecond, 10*time.Second)
}

// ShouldRetry reports whether err is transient and the budget allows another attempt.
func (p *Exponential) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if !errors.Is(err, harvest.ErrTransient) {
		return false
	}
	return p.maxAttempts <= 0 || attempt < p.maxAttempts
}

// Backoff returns the wait before the next attempt.
func (p *Exponential) Backoff(attempt int) time.Duration {
	if p.maxAttempts <= 0 || p.baseDelay <= 0 {
		return 0
	}
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(exp))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Do runs fn until it succeeds, fails permanently, or the policy gives up.
// Giving up on a transient failure returns an error wrapping
// harvest.ErrRetryExhausted and the last failure.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, harvest.ErrTransient) {
			return err
		}
		if !p.ShouldRetry(err, attempt) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%s: %w", op, ctxErr)
			}
			return fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, harvest.ErrRetryExhausted, err)
		}
		metrics.ObserveRetry(op)
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
