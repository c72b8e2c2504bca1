package limiter

import (
	"context"
	"fmt"
)

// ResetRateLimit clears the current fixed window and the token bucket for
// (tenantID, endpointClass).
func (e *Engine) ResetRateLimit(ctx context.Context, tenantID, endpointClass string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}
	policy := e.registry.Resolve(endpointClass)
	idx := windowIndex(e.clock.Now(), policy.Window)
	return e.guard.Do(ctx, "reset_rate_limit", func(ctx context.Context) error {
		return e.store.Delete(ctx, WindowKey(tenantID, endpointClass, idx), BucketKey(tenantID, endpointClass))
	})
}

// ResetQuota clears the tenant's usage for the current month.
func (e *Engine) ResetQuota(ctx context.Context, tenantID string, dim Dimension) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}
	return e.guard.Do(ctx, "reset_quota", func(ctx context.Context) error {
		return e.store.Delete(ctx, QuotaKey(tenantID, dim, e.clock.Now()))
	})
}
