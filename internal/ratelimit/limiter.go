// Package ratelimit paces page navigations so the exploration stays
// polite to its target.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a global token bucket with per-host buckets. Every
// worker waits on it before navigating, so pool parallelism never
// translates into a request burst against one host.
type Limiter struct {
	mu           sync.Mutex
	global       *rate.Limiter
	perHost      map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	hostDelay    time.Duration
	lastRequest  map[string]time.Time
}

// New creates a limiter allowing requestsPerSecond with the given burst.
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		global:       rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		perHost:      make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
		lastRequest:  make(map[string]time.Time),
	}
}

// SetHostDelay enforces a minimum gap between navigations to one host,
// on top of the token buckets.
func (l *Limiter) SetHostDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hostDelay = delay
}

// Wait blocks until a navigation to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	hostLimiter, ok := l.perHost[host]
	if !ok {
		hostLimiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.perHost[host] = hostLimiter
	}

	if l.hostDelay > 0 {
		if last, ok := l.lastRequest[host]; ok {
			if gap := l.hostDelay - time.Since(last); gap > 0 {
				l.mu.Unlock()
				select {
				case <-time.After(gap):
				case <-ctx.Done():
					return ctx.Err()
				}
				l.mu.Lock()
			}
		}
		l.lastRequest[host] = time.Now()
	}
	l.mu.Unlock()

	return hostLimiter.Wait(ctx)
}

// Allow reports whether a navigation to host may proceed right now,
// consuming tokens when it may.
func (l *Limiter) Allow(host string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	hostLimiter, ok := l.perHost[host]
	l.mu.Unlock()

	if !ok {
		return true
	}
	return hostLimiter.Allow()
}
