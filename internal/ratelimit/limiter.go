package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const baseBackoff = 100 * time.Millisecond

// Limiter paces outbound calls to one upstream. After a 429 it also holds
// every call for an escalating backoff.
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu          sync.Mutex
	backoff     time.Duration
	maxWait     time.Duration
	pausedUntil time.Time
	now         func() time.Time
}

// NewLimiter creates a limiter allowing perMinute calls. A non-positive
// perMinute disables pacing.
func NewLimiter(name string, perMinute int) *Limiter {
	l := &Limiter{
		name:    name,
		backoff: baseBackoff,
		maxWait: 2 * time.Minute,
		now:     time.Now,
	}
	if perMinute <= 0 {
		l.limiter = rate.NewLimiter(rate.Inf, 1)
		return l
	}
	rps := float64(perMinute) / 60.0
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}
	l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return l
}

// Wait blocks until a token is available and any backoff has elapsed, or
// ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	pause := l.Paused()
	if pause <= 0 {
		return nil
	}
	t := time.NewTimer(pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SignalRateLimited doubles the backoff and holds calls for that long.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff *= 2
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
	l.pausedUntil = l.now().Add(l.backoff)
}

// ResetBackoff ends any pause after a successful call.
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = baseBackoff
	l.pausedUntil = time.Time{}
}

func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Paused is how long calls are still held after the last 429.
func (l *Limiter) Paused() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pausedUntil.IsZero() {
		return 0
	}
	if d := l.pausedUntil.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

func (l *Limiter) Name() string {
	return l.name
}
