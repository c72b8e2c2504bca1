package gateway

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xizzxy/quotagate/internal/limiter"
)

const (
	tenantHeader = "X-Tenant-ID"
	resultKey    = "quotagate.result"
)

func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"tenant_id", c.GetString("tenant"),
		)
	}
}

// TenantMiddleware requires a tenant id from the X-Tenant-ID header or the
// tenant query parameter. The id is assumed to be resolved upstream.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(tenantHeader)
		if tenant == "" {
			tenant = c.Query("tenant")
		}
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant required"})
			return
		}
		c.Set("tenant", tenant)
		c.Next()
	}
}

// ClassFunc picks the endpoint class for a request.
type ClassFunc func(c *gin.Context) string

// ClassFromQuery reads the endpoint_class query parameter, defaulting to
// the default class.
func ClassFromQuery(c *gin.Context) string {
	if class := c.Query("endpoint_class"); class != "" {
		return class
	}
	return limiter.DefaultEndpointClass
}

// RateLimitMiddleware applies the fixed-window policy for the request's
// endpoint class and answers 429 on rejection. TenantMiddleware must run first.
func RateLimitMiddleware(engine *limiter.Engine, class ClassFunc, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := engine.CheckRateLimit(c.Request.Context(), c.GetString("tenant"), class(c))
		finish(c, res, err, logger)
	}
}

// BurstMiddleware applies the token-bucket policy registered for the
// request's endpoint class. Classes without a burst policy pass through.
func BurstMiddleware(engine *limiter.Engine, class ClassFunc, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpointClass := class(c)
		policy, ok := engine.Registry().Burst(endpointClass)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no burst policy for endpoint class", "endpoint_class": endpointClass})
			return
		}
		res, err := engine.CheckBurstRateLimit(c.Request.Context(), c.GetString("tenant"), endpointClass, policy)
		finish(c, res, err, logger)
	}
}

func finish(c *gin.Context, res limiter.Result, err error, logger *slog.Logger) {
	if err != nil {
		logger.Error("Rate limit check failed", "tenant_id", c.GetString("tenant"), "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	setRateHeaders(c, res)
	if !res.Allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"allowed":             false,
			"error":               "rate limit exceeded",
			"retry_after_seconds": res.RetryAfterSeconds,
			"reset_time":          res.ResetTime.Unix(),
		})
		return
	}
	c.Set(resultKey, res)
	c.Next()
}

func setRateHeaders(c *gin.Context, res limiter.Result) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	if res.Degraded {
		c.Header("X-RateLimit-Degraded", "true")
	}
	if !res.Allowed {
		c.Header("Retry-After", strconv.FormatInt(res.RetryAfterSeconds, 10))
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Tenant-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
