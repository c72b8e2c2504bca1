package limiter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xizzxy/quotagate/internal/store"
)

// Engine is the entry point route handlers call. All three checks share one
// counter store, one failure mode and one circuit breaker.
type Engine struct {
	store    store.CounterStore
	registry *Registry
	window   *FixedWindowLimiter
	bucket   *TokenBucketLimiter
	quota    *QuotaLedger
	guard    *Guard
	clock    Clock
	tracer   trace.Tracer
}

// NewEngine wires the limiters to st. A nil ceilings uses DefaultCeilings.
func NewEngine(st store.CounterStore, registry *Registry, ceilings CeilingSource, opts ...Option) *Engine {
	o := buildOptions(opts)
	g := o.guard()
	return &Engine{
		store:    st,
		registry: registry,
		window:   newFixedWindowLimiter(st, registry, o, g),
		bucket:   newTokenBucketLimiter(st, o, g),
		quota:    newQuotaLedger(st, ceilings, o, g),
		guard:    g,
		clock:    o.clock,
		tracer:   o.tracer,
	}
}

// Registry returns the policy registry the engine resolves against.
func (e *Engine) Registry() *Registry { return e.registry }

// FailureMode returns the decision applied when the store is unavailable.
func (e *Engine) FailureMode() FailureMode { return e.guard.Mode() }

// CheckRateLimit applies the fixed-window policy for endpointClass.
func (e *Engine) CheckRateLimit(ctx context.Context, tenantID, endpointClass string) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "limiter.CheckRateLimit", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ratelimit.endpoint_class", endpointClass),
	))
	defer span.End()

	res, err := e.window.Check(ctx, tenantID, endpointClass)
	endRateSpan(span, res, err)
	return res, err
}

// CheckBurstRateLimit applies a token bucket with the given policy.
func (e *Engine) CheckBurstRateLimit(ctx context.Context, tenantID, endpointClass string, policy BurstPolicy) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "limiter.CheckBurstRateLimit", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ratelimit.endpoint_class", endpointClass),
		attribute.Int64("ratelimit.burst_limit", policy.BurstLimit),
		attribute.Float64("ratelimit.refill_rate", policy.RefillRate),
	))
	defer span.End()

	res, err := e.bucket.Check(ctx, tenantID, endpointClass, policy)
	endRateSpan(span, res, err)
	return res, err
}

// CheckTenantQuota consumes amount from the tenant's monthly quota.
func (e *Engine) CheckTenantQuota(ctx context.Context, tenantID string, dim Dimension, amount int64) (QuotaResult, error) {
	ctx, span := e.tracer.Start(ctx, "limiter.CheckTenantQuota", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("quota.dimension", string(dim)),
		attribute.Int64("quota.amount", amount),
	))
	defer span.End()

	res, err := e.quota.CheckAndConsume(ctx, tenantID, dim, amount)
	endQuotaSpan(span, res, err)
	return res, err
}

// TenantUsage reads the tenant's current-month usage without consuming.
func (e *Engine) TenantUsage(ctx context.Context, tenantID string, dim Dimension) (QuotaResult, error) {
	ctx, span := e.tracer.Start(ctx, "limiter.TenantUsage", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("quota.dimension", string(dim)),
	))
	defer span.End()

	res, err := e.quota.Usage(ctx, tenantID, dim)
	endQuotaSpan(span, res, err)
	return res, err
}

func endRateSpan(span trace.Span, res Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", res.Allowed),
		attribute.Int64("ratelimit.remaining", res.Remaining),
		attribute.Bool("ratelimit.degraded", res.Degraded),
	)
}

func endQuotaSpan(span trace.Span, res QuotaResult, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Bool("quota.allowed", res.Allowed),
		attribute.Int64("quota.usage", res.Usage),
		attribute.Int64("quota.limit", res.Limit),
		attribute.Bool("quota.degraded", res.Degraded),
	)
}
