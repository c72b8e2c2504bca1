package limiter

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/xizzxy/quotagate/internal/store"
)

// Dimension is a metered resource with a monthly ceiling.
type Dimension string

const (
	DimensionAPICalls  Dimension = "api_calls"
	DimensionStorage   Dimension = "storage"
	DimensionBandwidth Dimension = "bandwidth"
)

const gib = int64(1) << 30

// CeilingSource supplies the monthly ceiling for a tenant and dimension.
// ok is false when the dimension is not metered.
type CeilingSource interface {
	Ceiling(ctx context.Context, tenantID string, dim Dimension) (ceiling int64, ok bool)
}

// StaticCeilings applies the same ceilings to every tenant.
type StaticCeilings map[Dimension]int64

// DefaultCeilings are the built-in monthly ceilings.
func DefaultCeilings() StaticCeilings {
	return StaticCeilings{
		DimensionAPICalls:  10000,
		DimensionStorage:   5 * gib,
		DimensionBandwidth: 50 * gib,
	}
}

// NewStaticCeilings validates a dimension → ceiling table.
func NewStaticCeilings(table map[string]int64) (StaticCeilings, error) {
	out := make(StaticCeilings, len(table))
	for dim, ceiling := range table {
		if dim == "" {
			return nil, fmt.Errorf("%w: quota without dimension", ErrInvalidConfiguration)
		}
		if ceiling < 0 {
			return nil, fmt.Errorf("%w: %s: quota ceiling must not be negative, got %d", ErrInvalidConfiguration, dim, ceiling)
		}
		out[Dimension(dim)] = ceiling
	}
	return out, nil
}

func (s StaticCeilings) Ceiling(_ context.Context, _ string, dim Dimension) (int64, bool) {
	c, ok := s[dim]
	return c, ok
}

// Dimensions lists the metered dimensions in sorted order.
func (s StaticCeilings) Dimensions() []Dimension {
	out := make([]Dimension, 0, len(s))
	for dim := range s {
		out = append(out, dim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QuotaLedger tracks monthly usage per (tenant, dimension) against a ceiling.
// Usage resets at the first instant of each UTC calendar month.
//
// Callers must consume quota before the metered side effect happens so a
// rejected request never leaves consumed resources behind.
type QuotaLedger struct {
	store    store.CounterStore
	ceilings CeilingSource
	clock    Clock
	guard    *Guard
	recorder Recorder
}

func NewQuotaLedger(st store.CounterStore, ceilings CeilingSource, opts ...Option) *QuotaLedger {
	o := buildOptions(opts)
	return newQuotaLedger(st, ceilings, o, o.guard())
}

func newQuotaLedger(st store.CounterStore, ceilings CeilingSource, o *options, g *Guard) *QuotaLedger {
	if ceilings == nil {
		ceilings = DefaultCeilings()
	}
	return &QuotaLedger{store: st, ceilings: ceilings, clock: o.clock, guard: g, recorder: o.recorder}
}

// CheckAndConsume adds amount to the tenant's usage for the current month if
// the result stays within the ceiling. An amount of zero only reads usage.
func (q *QuotaLedger) CheckAndConsume(ctx context.Context, tenantID string, dim Dimension, amount int64) (QuotaResult, error) {
	if tenantID == "" {
		return QuotaResult{}, fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}
	if amount < 0 {
		return QuotaResult{}, fmt.Errorf("%w: negative quota amount %d", ErrInvalidArgument, amount)
	}
	ceiling, ok := q.ceilings.Ceiling(ctx, tenantID, dim)
	if !ok {
		return QuotaResult{}, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}

	now := q.clock.Now()
	key := QuotaKey(tenantID, dim, now)
	reset := nextMonth(now)
	res := QuotaResult{Dimension: dim, Limit: ceiling, ResetDate: reset}

	err := q.guard.Do(ctx, kindQuota, func(ctx context.Context) error {
		usage, err := q.usage(ctx, key)
		if err != nil {
			return err
		}
		// Compared without adding so a huge amount cannot wrap past the ceiling.
		if amount > ceiling || usage > ceiling-amount {
			res.Allowed, res.Usage = false, usage
			return nil
		}
		if amount == 0 {
			res.Allowed, res.Usage = true, usage
			return nil
		}

		n, err := q.store.Incr(ctx, key, amount)
		if err != nil {
			return err
		}
		if n == amount {
			if err := q.store.ExpireIfUnset(ctx, key, ceilSeconds(reset.Sub(now))); err != nil {
				return err
			}
		}
		if n > ceiling {
			// A concurrent consumer got there first; give the amount back.
			if _, err := q.store.Incr(ctx, key, -amount); err != nil {
				return err
			}
			res.Allowed, res.Usage = false, n-amount
			return nil
		}
		res.Allowed, res.Usage = true, n
		return nil
	})
	if err != nil {
		admit := q.guard.Degrade(err, "limiter", kindQuota, "tenant_id", tenantID, "dimension", string(dim))
		q.recorder.ObserveDecision(kindQuota, string(dim), admit, true)
		return QuotaResult{Allowed: admit, Dimension: dim, Limit: ceiling, ResetDate: reset, Degraded: true}, nil
	}
	q.recorder.ObserveDecision(kindQuota, string(dim), res.Allowed, false)
	return res, nil
}

// Usage reads the tenant's usage for the current month without consuming.
// Allowed reports whether any quota is left.
func (q *QuotaLedger) Usage(ctx context.Context, tenantID string, dim Dimension) (QuotaResult, error) {
	if tenantID == "" {
		return QuotaResult{}, fmt.Errorf("%w: empty tenant id", ErrInvalidArgument)
	}
	ceiling, ok := q.ceilings.Ceiling(ctx, tenantID, dim)
	if !ok {
		return QuotaResult{}, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
	}

	now := q.clock.Now()
	key := QuotaKey(tenantID, dim, now)
	res := QuotaResult{Dimension: dim, Limit: ceiling, ResetDate: nextMonth(now)}

	err := q.guard.Do(ctx, "quota_usage", func(ctx context.Context) error {
		usage, err := q.usage(ctx, key)
		res.Usage = usage
		return err
	})
	if err != nil {
		res.Allowed = q.guard.Degrade(err, "limiter", kindQuota, "tenant_id", tenantID, "dimension", string(dim))
		res.Usage = 0
		res.Degraded = true
		return res, nil
	}
	res.Allowed = res.Usage < ceiling
	return res, nil
}

func (q *QuotaLedger) usage(ctx context.Context, key string) (int64, error) {
	raw, found, err := q.store.Get(ctx, key)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quota %s: %w", key, store.ErrNotInteger)
	}
	return n, nil
}
