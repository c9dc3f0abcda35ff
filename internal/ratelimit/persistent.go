package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/wisbric/pdpsync/internal/kvstore"
)

const (
	bucketKey = "rate_limiter/publishing_bucket"
	bucketTTL = 120 * time.Second
)

// bucketState is the persisted token-bucket record.
type bucketState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// PersistentLimiter stores bucket state in KV so the rate limit survives
// restarts across processes. On KV failure it fails open (allows, logs a
// warning); rate limiting must never block correctness.
type PersistentLimiter struct {
	kv         kvstore.Store
	logger     *slog.Logger
	maxTokens  float64
	refillRate float64
}

// NewPersistent creates a PersistentLimiter.
func NewPersistent(kv kvstore.Store, logger *slog.Logger, maxTokens int, refillRate float64) *PersistentLimiter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}
	return &PersistentLimiter{kv: kv, logger: logger, maxTokens: float64(maxTokens), refillRate: refillRate}
}

// TryAcquire reads, refills, and writes back the bucket state. On any KV
// error it allows the request and logs a warning rather than blocking.
func (p *PersistentLimiter) TryAcquire(ctx context.Context) Result {
	now := time.Now()

	state, err := p.load(ctx)
	if err != nil {
		p.logger.Warn("rate limiter KV read failed, failing open", "error", err)
		return Result{Allowed: true}
	}

	refilled := p.refill(state, now)

	if refilled.Tokens < 1 {
		if err := p.save(ctx, refilled); err != nil {
			p.logger.Warn("rate limiter KV write failed, failing open", "error", err)
			return Result{Allowed: true}
		}
		retryAfter := time.Duration((1-refilled.Tokens)/p.refillRate*1000) * time.Millisecond
		return Result{Allowed: false, TokensRemaining: refilled.Tokens, RetryAfterMs: retryAfter.Milliseconds()}
	}

	refilled.Tokens--
	if err := p.save(ctx, refilled); err != nil {
		p.logger.Warn("rate limiter KV write failed, failing open", "error", err)
		return Result{Allowed: true}
	}
	return Result{Allowed: true, TokensRemaining: refilled.Tokens}
}

func (p *PersistentLimiter) refill(state bucketState, now time.Time) bucketState {
	if state.LastRefill.IsZero() {
		return bucketState{Tokens: p.maxTokens, LastRefill: now}
	}
	elapsed := now.Sub(state.LastRefill).Seconds()
	minted := math.Floor(elapsed * p.refillRate)
	if minted <= 0 {
		return state
	}
	tokens := math.Min(p.maxTokens, state.Tokens+minted)
	// Advance last_refill by exactly the whole intervals consumed, per spec.
	consumedSeconds := minted / p.refillRate
	return bucketState{
		Tokens:     tokens,
		LastRefill: state.LastRefill.Add(time.Duration(consumedSeconds * float64(time.Second))),
	}
}

func (p *PersistentLimiter) load(ctx context.Context) (bucketState, error) {
	raw, ok, err := p.kv.Get(ctx, bucketKey)
	if err != nil {
		return bucketState{}, err
	}
	if !ok {
		return bucketState{Tokens: p.maxTokens, LastRefill: time.Time{}}, nil
	}
	var s bucketState
	if err := json.Unmarshal(raw, &s); err != nil {
		return bucketState{}, err
	}
	return s, nil
}

func (p *PersistentLimiter) save(ctx context.Context, s bucketState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.kv.Put(ctx, bucketKey, raw, bucketTTL)
}
