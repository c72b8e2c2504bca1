package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xizzxy/quotagate/internal/limiter"
	"github.com/xizzxy/quotagate/internal/store"
)

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	if s.metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/policies", s.handlePolicies)

		tenant := api.Group("", TenantMiddleware())
		tenant.GET("/ratelimit", RateLimitMiddleware(s.engine, ClassFromQuery, s.logger), s.handleAdmitted)
		tenant.GET("/burst", BurstMiddleware(s.engine, ClassFromQuery, s.logger), s.handleAdmitted)
		tenant.POST("/quota/:dimension", s.handleConsumeQuota)
		tenant.GET("/quota/:dimension", s.handleQuotaUsage)
	}
}

func (s *Server) handleAdmitted(c *gin.Context) {
	v, _ := c.Get(resultKey)
	c.JSON(http.StatusOK, v)
}

type consumeRequest struct {
	Amount *int64 `json:"amount"`
}

func (s *Server) handleConsumeQuota(c *gin.Context) {
	var req consumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}

	tenant := c.GetString("tenant")
	res, err := s.engine.CheckTenantQuota(c.Request.Context(), tenant, limiter.Dimension(c.Param("dimension")), amount)
	if err != nil {
		s.quotaError(c, err)
		return
	}
	if !res.Allowed {
		c.Header("Retry-After", formatSeconds(time.Until(res.ResetDate)))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"allowed":    false,
			"error":      "quota exceeded",
			"dimension":  res.Dimension,
			"usage":      res.Usage,
			"limit":      res.Limit,
			"reset_date": res.ResetDate,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleQuotaUsage(c *gin.Context) {
	res, err := s.engine.TenantUsage(c.Request.Context(), c.GetString("tenant"), limiter.Dimension(c.Param("dimension")))
	if err != nil {
		s.quotaError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) quotaError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, limiter.ErrUnknownDimension):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, limiter.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Quota check failed", "tenant_id", c.GetString("tenant"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (s *Server) handlePolicies(c *gin.Context) {
	registry := s.engine.Registry()
	c.JSON(http.StatusOK, gin.H{
		"policies":     registry.Policies(),
		"burst":        registry.BurstPolicies(),
		"failure_mode": s.engine.FailureMode(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"limiter": "healthy"}

	// A store outage degrades decisions but does not take the gateway down.
	if p, ok := s.store.(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			checks["store"] = "unavailable: " + err.Error()
		} else {
			checks["store"] = "healthy"
		}
	}
	if rs, ok := s.store.(*store.RedisStore); ok && c.Query("verbose") == "true" {
		checks["redis_stats"] = rs.Stats(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"version":          s.config.Observability.ServiceVersion,
		"consistency_mode": s.config.Gateway.ConsistencyMode,
		"checks":           checks,
	})
}

func formatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(int64((d+time.Second-1)/time.Second), 10)
}
