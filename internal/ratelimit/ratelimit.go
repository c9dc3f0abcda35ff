// Package ratelimit implements the token-bucket rate limiter, wrapping
// golang.org/x/time/rate.Limiter behind a richer try-acquire/acquire
// contract than the bare library exposes.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxTokens is the default bucket capacity.
	DefaultMaxTokens = 20
	// DefaultRefillRate is the default refill rate in tokens/second.
	DefaultRefillRate = 20
	// DefaultAcquireTimeout is the default blocking-acquire timeout.
	DefaultAcquireTimeout = 30 * time.Second
)

// Result is the outcome of a non-blocking TryAcquire.
type Result struct {
	Allowed               bool
	TokensRemaining       float64
	RequestsInLastSecond  int
	RetryAfterMs          int64
}

// Limiter is an in-memory token bucket.
type Limiter struct {
	lim *rate.Limiter

	mu        chan struct{} // binary mutex guarding recent below
	recent    []time.Time
	maxTokens int
}

// New creates a Limiter with the given capacity (burst) and refill rate
// (tokens/second). Zero values fall back to the spec defaults.
func New(maxTokens int, refillRate float64) *Limiter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}
	return &Limiter{
		lim:       rate.NewLimiter(rate.Limit(refillRate), maxTokens),
		mu:        make(chan struct{}, 1),
		maxTokens: maxTokens,
	}
}

func (l *Limiter) lock()   { l.mu <- struct{}{} }
func (l *Limiter) unlock() { <-l.mu }

// TryAcquire is non-blocking: it consumes one token if available.
func (l *Limiter) TryAcquire() Result {
	now := time.Now()
	reservation := l.lim.ReserveN(now, 1)
	if !reservation.OK() {
		return Result{Allowed: false}
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.Cancel()
		return Result{
			Allowed:              false,
			TokensRemaining:      l.lim.TokensAt(now),
			RequestsInLastSecond: l.recordRequest(now),
			RetryAfterMs:         delay.Milliseconds(),
		}
	}
	return Result{
		Allowed:              true,
		TokensRemaining:      l.lim.TokensAt(now),
		RequestsInLastSecond: l.recordRequest(now),
	}
}

// Acquire blocks until a token is available or timeout elapses.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	l.recordRequest(time.Now())
	return nil
}

// recordRequest appends now to the sliding window (pruning entries older
// than 1s) and returns the resulting count.
func (l *Limiter) recordRequest(now time.Time) int {
	l.lock()
	defer l.unlock()

	cutoff := now.Add(-1 * time.Second)
	kept := l.recent[:0]
	for _, t := range l.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.recent = kept
	return len(l.recent)
}
