package limiter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xizzxy/quotagate/internal/store"
)

// bucketIdleTTL bounds storage for idle buckets. An expired bucket comes
// back full, which is the right state after a long idle period.
const bucketIdleTTL = time.Hour

// TokenBucketLimiter admits bursts up to a bucket capacity and refills the
// bucket lazily on each check.
//
// Stores implementing store.TokenTaker run refill-then-consume atomically.
// Other stores use a get/compute/set sequence: concurrent checks on one key
// may each see the same stale balance, so a burst can over-admit by at most
// the number of concurrent callers. Rejections never write.
type TokenBucketLimiter struct {
	store    store.CounterStore
	clock    Clock
	guard    *Guard
	recorder Recorder
}

func NewTokenBucketLimiter(st store.CounterStore, opts ...Option) *TokenBucketLimiter {
	o := buildOptions(opts)
	return newTokenBucketLimiter(st, o, o.guard())
}

func newTokenBucketLimiter(st store.CounterStore, o *options, g *Guard) *TokenBucketLimiter {
	return &TokenBucketLimiter{store: st, clock: o.clock, guard: g, recorder: o.recorder}
}

// Check consumes one token from the (tenantID, endpointClass) bucket.
func (l *TokenBucketLimiter) Check(ctx context.Context, tenantID, endpointClass string, policy BurstPolicy) (Result, error) {
	if tenantID == "" {
		return Result{}, fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}
	if err := policy.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	now := l.clock.Now()
	key := BucketKey(tenantID, endpointClass)

	var (
		allowed bool
		tokens  float64
	)
	err := l.guard.Do(ctx, kindTokenBucket, func(ctx context.Context) error {
		var err error
		allowed, tokens, err = l.take(ctx, key, policy, now.UnixMilli())
		return err
	})
	if err != nil {
		admit := l.guard.Degrade(err, "limiter", kindTokenBucket, "tenant_id", tenantID, "endpoint_class", endpointClass)
		res := Result{Allowed: admit, Limit: policy.BurstLimit, ResetTime: now, Degraded: true}
		if admit {
			res.Remaining = policy.BurstLimit
			res.Tokens = float64(policy.BurstLimit)
		} else {
			res.ResetTime = now.Add(untilNextToken(policy.RefillRate))
			res.RetryAfterSeconds = retryAfterSeconds(now, res.ResetTime)
		}
		l.recorder.ObserveDecision(kindTokenBucket, endpointClass, admit, true)
		return res, nil
	}

	res := Result{
		Allowed:   allowed,
		Limit:     policy.BurstLimit,
		Remaining: int64(math.Floor(tokens)),
		Tokens:    tokens,
	}
	if allowed {
		res.ResetTime = now.Add(millis(math.Ceil((float64(policy.BurstLimit) - tokens) / policy.RefillRate * 1000)))
	} else {
		res.ResetTime = now.Add(untilNextToken(policy.RefillRate))
		res.RetryAfterSeconds = retryAfterSeconds(now, res.ResetTime)
	}
	l.recorder.ObserveDecision(kindTokenBucket, endpointClass, allowed, false)
	return res, nil
}

func (l *TokenBucketLimiter) take(ctx context.Context, key string, p BurstPolicy, nowMs int64) (bool, float64, error) {
	if tt, ok := l.store.(store.TokenTaker); ok {
		return tt.TakeToken(ctx, key, p.BurstLimit, p.RefillRate, nowMs, bucketIdleTTL)
	}

	state := store.FullBucket(p.BurstLimit, nowMs)
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if found {
		// An unreadable record is replaced by a full bucket.
		if parsed, err := store.ParseBucketState(raw); err == nil {
			state = parsed
		}
	}
	next, ok := state.Take(p.BurstLimit, p.RefillRate, nowMs)
	if !ok {
		return false, next.Tokens, nil
	}
	if err := l.store.Set(ctx, key, next.String(), bucketIdleTTL); err != nil {
		return false, 0, err
	}
	return true, next.Tokens, nil
}

// untilNextToken is ceil(1000/rate) milliseconds.
func untilNextToken(refillRate float64) time.Duration {
	return millis(math.Ceil(1000 / refillRate))
}

func millis(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
