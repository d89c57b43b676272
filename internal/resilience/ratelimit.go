package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-free sliding-window limiter: it keeps the
// timestamps of the last N requests within the trailing 60 seconds and, before
// each new request, blocks until fewer than N remain in the window. There is
// no token refill; an empty window permits immediate issue.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time

	// now is swapped out in tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter admitting at most maxPerMinute requests in
// any trailing 60-second window. maxPerMinute <= 0 disables limiting.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{
		max:    maxPerMinute,
		window: time.Minute,
		now:    time.Now,
	}
}

// Wait blocks until a request may be issued, then records its timestamp.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.max <= 0 {
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}
		// Window is full: the oldest stamp falls out of the window first.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if !Sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Pending returns how many requests are currently inside the window.
func (l *RateLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
