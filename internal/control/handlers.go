package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xizzxy/quotagate/internal/limiter"
	"github.com/xizzxy/quotagate/internal/tenant"
)

// checkDimensions rejects overrides for dimensions that are not metered.
func (s *Server) checkDimensions(o tenant.Override) error {
	for dim := range o.Quotas {
		if _, ok := s.ceilings[limiter.Dimension(dim)]; !ok {
			return fmt.Errorf("%w: %q", limiter.ErrUnknownDimension, dim)
		}
	}
	return nil
}

func (s *Server) saveOverride(c *gin.Context, o tenant.Override, status int) {
	if err := s.checkDimensions(o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	saved, err := s.repo.Save(ctx, o)
	if errors.Is(err, tenant.ErrInvalidRecord) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("Failed to store tenant override", "tenant_id", o.TenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store override"})
		return
	}
	c.JSON(status, saved)
}

func (s *Server) createOverride(c *gin.Context) {
	var o tenant.Override
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.saveOverride(c, o, http.StatusCreated)
}

func (s *Server) updateOverride(c *gin.Context) {
	var o tenant.Override
	if err := c.ShouldBindJSON(&o); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	o.TenantID = c.Param("tenant_id")
	s.saveOverride(c, o, http.StatusOK)
}

func (s *Server) getOverride(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	o, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant override not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to get tenant override", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve override"})
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) deleteOverride(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	err := s.repo.Delete(ctx, tenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant override not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to delete tenant override", "tenant_id", tenantID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete override"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listOverrides(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	overrides, skipped, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list tenant overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list overrides"})
		return
	}
	for _, key := range skipped {
		s.logger.Warn("Failed to parse tenant override", "key", key)
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants": overrides,
		"count":   len(overrides),
	})
}

// getUsage reports current-month usage for every metered dimension, using
// the tenant's override ceilings when one exists.
func (s *Server) getUsage(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	override, err := s.repo.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, tenant.ErrNotFound) {
		s.logger.Warn("Failed to load tenant override, reporting default ceilings", "tenant_id", tenantID, "error", err)
	}

	usage := make([]limiter.QuotaResult, 0, len(s.ceilings))
	for _, dim := range s.ceilings.Dimensions() {
		res, err := s.engine.TenantUsage(ctx, tenantID, dim)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if ceiling, ok := override.Quotas[string(dim)]; ok {
			res.Limit = ceiling
			res.Allowed = res.Usage < ceiling
		}
		usage = append(usage, res)
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "usage": usage})
}

func (s *Server) resetRateLimit(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	class := c.Query("endpoint_class")
	if class == "" {
		class = limiter.DefaultEndpointClass
	}
	if err := s.engine.ResetRateLimit(c.Request.Context(), tenantID, class); err != nil {
		s.logger.Error("Failed to reset rate limit", "tenant_id", tenantID, "endpoint_class", class, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to reset counters"})
		return
	}
	s.logger.Info("Rate limit counters reset", "tenant_id", tenantID, "endpoint_class", class)
	c.Status(http.StatusNoContent)
}

func (s *Server) resetQuota(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	dim := limiter.Dimension(c.Param("dimension"))
	if _, ok := s.ceilings[dim]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown quota dimension %q", dim)})
		return
	}
	if err := s.engine.ResetQuota(c.Request.Context(), tenantID, dim); err != nil {
		s.logger.Error("Failed to reset quota", "tenant_id", tenantID, "dimension", dim, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to reset quota"})
		return
	}
	s.logger.Info("Quota usage reset", "tenant_id", tenantID, "dimension", dim)
	c.Status(http.StatusNoContent)
}
