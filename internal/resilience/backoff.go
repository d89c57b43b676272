package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig controls retry behavior for portal HTTP calls: each request
// is attempted up to MaxRetries+1 times, waiting
// BaseDelay * 2^attempt + uniform(0, MaxJitter) between attempts.
type BackoffConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
}

// DefaultBackoff returns the standard portal retry configuration.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxJitter:  500 * time.Millisecond,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = 500 * time.Millisecond
	}
	return c
}

// Delay computes the wait before retrying after the given zero-based attempt.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt)))
	return d + time.Duration(rand.Int63n(int64(c.MaxJitter)))
}

// RetryVal runs fn up to MaxRetries+1 times, sleeping Delay(attempt) between
// failures. Non-transient errors stop immediately; context cancellation stops
// retries and returns the last error.
func RetryVal[T any](ctx context.Context, cfg BackoffConfig, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !IsTransient(err) {
			return zero, lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.Delay(attempt)
		zap.L().Warn("retrying after transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if !Sleep(ctx, delay) {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until the context is done. Returns false when the
// context ended the wait early.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
