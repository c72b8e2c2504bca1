package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/xizzxy/quotagate/internal/config"
	"github.com/xizzxy/quotagate/internal/limiter"
	"github.com/xizzxy/quotagate/internal/store"
	"github.com/xizzxy/quotagate/internal/tenant"
)

const etcdTimeout = 5 * time.Second

// Server is the admin API: per-tenant quota ceiling overrides in etcd and
// counter resets against the shared counter store.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	repo       *tenant.Repository
	engine     *limiter.Engine
	ceilings   limiter.StaticCeilings
	store      store.CounterStore
	etcdHealth func(ctx context.Context) error
	closers    []func() error
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	st, err := store.Open(cfg.Gateway.ConsistencyMode, cfg.Redis)
	if err != nil {
		_ = etcdClient.Close()
		return nil, err
	}
	pf, err := config.LoadPolicyFile(cfg.Limits.PolicyFile)
	if err != nil {
		_ = etcdClient.Close()
		return nil, err
	}
	registry, static, err := limiter.FromPolicyFile(pf)
	if err != nil {
		_ = etcdClient.Close()
		return nil, err
	}

	opts, err := limiter.OptionsFromConfig(cfg.Limits, cfg.Resilience.CircuitBreaker)
	if err != nil {
		_ = etcdClient.Close()
		return nil, err
	}

	s := newServer(cfg, tenant.NewRepository(etcdClient, cfg.Etcd.Prefix), st, registry, static, logger, opts...)
	s.etcdHealth = func(ctx context.Context) error {
		_, err := etcdClient.Status(ctx, cfg.Etcd.Endpoints[0])
		return err
	}
	s.closers = append(s.closers, etcdClient.Close)
	if rs, ok := st.(*store.RedisStore); ok {
		s.closers = append(s.closers, rs.Close)
	}
	return s, nil
}

func newServer(cfg *config.Config, repo *tenant.Repository, st store.CounterStore, registry *limiter.Registry, static limiter.StaticCeilings, logger *slog.Logger, opts ...limiter.Option) *Server {
	opts = append([]limiter.Option{
		limiter.WithLogger(logger),
		limiter.WithStoreTimeout(cfg.Limits.StoreTimeout),
	}, opts...)

	s := &Server{
		config:     cfg,
		logger:     logger,
		repo:       repo,
		engine:     limiter.NewEngine(st, registry, static, opts...),
		ceilings:   static,
		store:      st,
		etcdHealth: func(context.Context) error { return nil },
	}

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	})
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api/v1")
	{
		api.GET("/tenants", s.listOverrides)
		api.POST("/tenants", s.createOverride)
		api.GET("/tenants/:tenant_id", s.getOverride)
		api.PUT("/tenants/:tenant_id", s.updateOverride)
		api.DELETE("/tenants/:tenant_id", s.deleteOverride)
		api.GET("/tenants/:tenant_id/usage", s.getUsage)
		api.POST("/tenants/:tenant_id/reset/ratelimit", s.resetRateLimit)
		api.POST("/tenants/:tenant_id/reset/quota/:dimension", s.resetQuota)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Control.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.Control.ReadTimeout,
		WriteTimeout: s.config.Control.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("Control plane server started", "address", s.config.Control.Address)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down control plane server")

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
		}
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), etcdTimeout)
	defer cancel()

	if err := s.etcdHealth(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "etcd connectivity issue",
		})
		return
	}

	storeStatus := "healthy"
	if p, ok := s.store.(store.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			storeStatus = "unavailable"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "quotagate-control",
		"version":   s.config.Observability.ServiceVersion,
		"store":     storeStatus,
		"timestamp": time.Now().UTC(),
	})
}
