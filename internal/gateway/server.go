package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/xizzxy/quotagate/internal/config"
	"github.com/xizzxy/quotagate/internal/limiter"
	"github.com/xizzxy/quotagate/internal/observability"
	"github.com/xizzxy/quotagate/internal/store"
	"github.com/xizzxy/quotagate/internal/tenant"
)

type Server struct {
	config         *config.Config
	httpServer     *http.Server
	grpcServer     *grpc.Server
	health         *health.Server
	engine         *limiter.Engine
	store          store.CounterStore
	ceilings       *tenant.CeilingCache
	etcd           *clientv3.Client
	metricsHandler http.Handler
	logger         *slog.Logger
	cancel         context.CancelFunc
}

// NewServer builds the counter store for the configured consistency mode
// and, when enabled, the etcd-backed tenant ceiling overrides.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := store.Open(cfg.Gateway.ConsistencyMode, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if cfg.Gateway.ConsistencyMode == store.ModeStrong {
		logger.Info("Using Redis counter store (strong mode)", "address", cfg.Redis.Address)
	} else {
		logger.Info("Using in-process counter store (fast mode)")
	}

	pf, err := config.LoadPolicyFile(cfg.Limits.PolicyFile)
	if err != nil {
		return nil, err
	}
	registry, static, err := limiter.FromPolicyFile(pf)
	if err != nil {
		return nil, err
	}

	var (
		ceilings limiter.CeilingSource = static
		cache    *tenant.CeilingCache
		etcd     *clientv3.Client
	)
	if cfg.Limits.TenantOverrides {
		etcd, err = clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
			Username:    cfg.Etcd.Username,
			Password:    cfg.Etcd.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		cache = tenant.NewCeilingCache(tenant.NewRepository(etcd, cfg.Etcd.Prefix), static, logger)
		ceilings = cache
	}

	s, err := newServer(cfg, st, registry, ceilings, prometheus.NewRegistry(), logger)
	if err != nil {
		if etcd != nil {
			_ = etcd.Close()
		}
		return nil, err
	}
	s.ceilings = cache
	s.etcd = etcd
	return s, nil
}

func newServer(cfg *config.Config, st store.CounterStore, registry *limiter.Registry, ceilings limiter.CeilingSource, reg *prometheus.Registry, logger *slog.Logger, extra ...limiter.Option) (*Server, error) {
	opts, err := limiter.OptionsFromConfig(cfg.Limits, cfg.Resilience.CircuitBreaker)
	if err != nil {
		return nil, err
	}
	opts = append(opts, limiter.WithLogger(logger))

	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, limiter.WithRecorder(observability.NewMetrics(reg)))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	opts = append(opts, extra...)

	s := &Server{
		config:         cfg,
		engine:         limiter.NewEngine(st, registry, ceilings, opts...),
		store:          st,
		metricsHandler: metricsHandler,
		logger:         logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware())
	s.setupRoutes(router)

	var handler http.Handler = router
	if cfg.Gateway.EnableH2C {
		handler = h2c.NewHandler(router, &http2.Server{})
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Gateway.Address,
		Handler:      handler,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}

	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryLoggingInterceptor(logger),
		UnaryRateLimitInterceptor(s.engine, SkipInfrastructure),
	))
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.ceilings != nil {
		refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.ceilings.Refresh(refreshCtx); err != nil {
			s.logger.Warn("Initial tenant override load failed, using static ceilings", "error", err)
		}
		cancel()
		go s.ceilings.Run(ctx, s.config.Limits.OverrideRefresh)
	}
	if mem, ok := s.store.(*store.MemoryStore); ok {
		go mem.RunSweeper(ctx, s.config.Limits.SweepInterval)
	}

	lis, err := net.Listen("tcp", s.config.Gateway.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	go func() {
		s.logger.Info("Starting HTTP server", "address", s.config.Gateway.Address, "h2c", s.config.Gateway.EnableH2C)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		s.logger.Info("Starting gRPC server", "address", s.config.Gateway.GRPCAddress)
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("gRPC server error", "error", err)
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down gateway server")
	s.health.Shutdown()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.grpcServer.GracefulStop()

	if s.cancel != nil {
		s.cancel()
	}
	if rs, ok := s.store.(*store.RedisStore); ok {
		if err := rs.Close(); err != nil {
			s.logger.Error("Failed to close Redis store", "error", err)
		}
	}
	if s.etcd != nil {
		if err := s.etcd.Close(); err != nil {
			s.logger.Error("Failed to close etcd client", "error", err)
		}
	}
	return nil
}
