package tenant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xizzxy/quotagate/internal/limiter"
)

// CeilingCache serves quota ceilings from an in-memory copy of the etcd
// overrides, falling back to the static table. Lookups never touch etcd.
type CeilingCache struct {
	repo   *Repository
	base   limiter.StaticCeilings
	logger *slog.Logger

	mu        sync.RWMutex
	overrides map[string]map[limiter.Dimension]int64
}

func NewCeilingCache(repo *Repository, base limiter.StaticCeilings, logger *slog.Logger) *CeilingCache {
	return &CeilingCache{
		repo:      repo,
		base:      base,
		logger:    logger,
		overrides: make(map[string]map[limiter.Dimension]int64),
	}
}

// Ceiling implements limiter.CeilingSource. Only dimensions present in the
// static table are metered; an override can change a ceiling but not add
// a dimension.
func (c *CeilingCache) Ceiling(ctx context.Context, tenantID string, dim limiter.Dimension) (int64, bool) {
	def, ok := c.base.Ceiling(ctx, tenantID, dim)
	if !ok {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ceiling, ok := c.overrides[tenantID][dim]; ok {
		return ceiling, true
	}
	return def, true
}

// Refresh reloads every override from etcd.
func (c *CeilingCache) Refresh(ctx context.Context) error {
	list, skipped, err := c.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range skipped {
		c.logger.Warn("Skipping undecodable tenant override", "key", key)
	}

	next := make(map[string]map[limiter.Dimension]int64, len(list))
	for _, o := range list {
		dims := make(map[limiter.Dimension]int64, len(o.Quotas))
		for dim, ceiling := range o.Quotas {
			dims[limiter.Dimension(dim)] = ceiling
		}
		next[o.TenantID] = dims
	}

	c.mu.Lock()
	c.overrides = next
	c.mu.Unlock()
	return nil
}

// Len returns the number of tenants with overrides.
func (c *CeilingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.overrides)
}

// Run refreshes the cache every interval until ctx is cancelled. A failed
// refresh keeps the previous overrides.
func (c *CeilingCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("Failed to refresh tenant overrides", "error", err)
			}
		}
	}
}
