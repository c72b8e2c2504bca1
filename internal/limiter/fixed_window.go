package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xizzxy/quotagate/internal/store"
)

// FixedWindowLimiter admits at most MaxRequests per (tenant, endpoint class)
// in each fixed window.
type FixedWindowLimiter struct {
	store    store.CounterStore
	registry *Registry
	clock    Clock
	guard    *Guard
	recorder Recorder
}

func NewFixedWindowLimiter(st store.CounterStore, registry *Registry, opts ...Option) *FixedWindowLimiter {
	o := buildOptions(opts)
	return newFixedWindowLimiter(st, registry, o, o.guard())
}

func newFixedWindowLimiter(st store.CounterStore, registry *Registry, o *options, g *Guard) *FixedWindowLimiter {
	return &FixedWindowLimiter{store: st, registry: registry, clock: o.clock, guard: g, recorder: o.recorder}
}

// Check counts one request against the window containing now.
func (l *FixedWindowLimiter) Check(ctx context.Context, tenantID, endpointClass string) (Result, error) {
	if tenantID == "" {
		return Result{}, fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}

	policy := l.registry.Resolve(endpointClass)
	now := l.clock.Now()
	idx := windowIndex(now, policy.Window)
	key := WindowKey(tenantID, endpointClass, idx)
	reset := time.UnixMilli((idx + 1) * policy.Window.Milliseconds())

	var count int64
	err := l.guard.Do(ctx, kindFixedWindow, func(ctx context.Context) error {
		var err error
		count, err = l.increment(ctx, key, policy)
		return err
	})
	if err != nil {
		admit := l.guard.Degrade(err, "limiter", kindFixedWindow, "tenant_id", tenantID, "endpoint_class", endpointClass)
		res := Result{Allowed: admit, Limit: policy.MaxRequests, ResetTime: reset, Degraded: true}
		if admit {
			res.Remaining = policy.MaxRequests
		} else {
			res.RetryAfterSeconds = retryAfterSeconds(now, reset)
		}
		l.recorder.ObserveDecision(kindFixedWindow, endpointClass, admit, true)
		return res, nil
	}

	allowed := count <= policy.MaxRequests
	res := Result{
		Allowed:   allowed,
		Limit:     policy.MaxRequests,
		Remaining: max(policy.MaxRequests-count, 0),
		ResetTime: reset,
	}
	if !allowed {
		res.RetryAfterSeconds = retryAfterSeconds(now, reset)
	}
	l.recorder.ObserveDecision(kindFixedWindow, endpointClass, allowed, false)
	return res, nil
}

// increment returns the window count after this request. A window that is
// already full is not incremented further; otherwise the atomic increment's
// return value is the decision.
func (l *FixedWindowLimiter) increment(ctx context.Context, key string, policy RateLimitPolicy) (int64, error) {
	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if found {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= policy.MaxRequests {
			return n + 1, nil
		}
	}

	n, err := l.store.Incr(ctx, key, 1)
	if errors.Is(err, store.ErrNotInteger) {
		// A corrupt window record restarts the window rather than failing it.
		if err := l.store.Delete(ctx, key); err != nil {
			return 0, err
		}
		n, err = l.store.Incr(ctx, key, 1)
	}
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// Only the window's creator sets the TTL so hits never extend it.
		if err := l.store.ExpireIfUnset(ctx, key, ceilSeconds(policy.Window)); err != nil {
			return 0, err
		}
	}
	return n, nil
}
