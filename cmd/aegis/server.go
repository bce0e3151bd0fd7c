package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegisframework/aegis/api/handlers"
	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/gateway"
	"github.com/aegisframework/aegis/internal/database"
	"github.com/aegisframework/aegis/internal/metrics"
	"github.com/aegisframework/aegis/internal/telemetry"
	"github.com/aegisframework/aegis/persistence"
	"github.com/aegisframework/aegis/principal"
)

// Server owns the HTTP listeners and the gateway and principal services.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector

	gatewaySvc   *gateway.Service
	principalSvc *principal.Principal

	dbPool        *database.PoolManager
	registryStore persistence.RegistryStore
	sessionStore  persistence.SessionStore

	healthHandler *handlers.HealthHandler

	httpServer    *http.Server
	metricsServer *http.Server

	otelProviders    *telemetry.Providers
	serviceCtx       context.Context
	serviceCancel    context.CancelFunc
	rateLimiterStop  context.CancelFunc
	shutdownComplete chan struct{}
}

// NewServer assembles an unstarted server from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:              cfg,
		logger:           logger,
		otelProviders:    otelProviders,
		serviceCtx:       ctx,
		serviceCancel:    cancel,
		shutdownComplete: make(chan struct{}),
	}
}

// Start wires persistence, services, handlers, and both listeners.
func (s *Server) Start() error {
	s.registry = prometheus.NewRegistry()
	s.collector = metrics.NewCollector("aegis", s.registry, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	if err := s.initPersistence(); err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	if err := s.initServices(); err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initPersistence opens the optional database-backed registry store and the
// optional redis-backed session store. Both are best-effort: the in-memory
// registry stays authoritative and the service runs without them.
func (s *Server) initPersistence() error {
	if s.cfg.Gateway.Persist && s.cfg.Database.Driver != "" {
		db, err := persistence.OpenDatabase(s.cfg.Database)
		if err != nil {
			s.logger.Warn("database unavailable, registry persistence disabled", zap.Error(err))
		} else {
			poolCfg := database.DefaultPoolConfig()
			if s.cfg.Database.MaxOpenConns > 0 {
				poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
			}
			if s.cfg.Database.MaxIdleConns > 0 {
				poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
			}
			if s.cfg.Database.ConnMaxLifetime > 0 {
				poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
			}
			pool, err := database.NewPoolManager(db, poolCfg, s.logger)
			if err != nil {
				return err
			}
			s.dbPool = pool

			store, err := persistence.NewGormRegistryStore(pool.DB(), s.logger)
			if err != nil {
				return err
			}
			s.registryStore = store

			s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", pool.Ping))
			s.logger.Info("registry persistence enabled", zap.String("driver", s.cfg.Database.Driver))
		}
	}

	if s.cfg.Redis.Addr != "" {
		client, err := persistence.NewRedisClient(s.cfg.Redis)
		if err != nil {
			s.logger.Warn("redis unavailable, session persistence disabled", zap.Error(err))
		} else {
			s.sessionStore = persistence.NewRedisSessionStore(client, s.cfg.Redis.KeyPrefix, s.logger)
			s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			}))
			s.logger.Info("session persistence enabled", zap.String("addr", s.cfg.Redis.Addr))
		}
	}
	return nil
}

func (s *Server) initServices() error {
	gwOpts := []gateway.Option{gateway.WithMetrics(s.collector)}
	if s.registryStore != nil {
		gwOpts = append(gwOpts, gateway.WithPersistence(s.registryStore))
	}
	s.gatewaySvc = gateway.NewService(s.cfg.Gateway, s.logger, gwOpts...)
	if err := s.gatewaySvc.Start(s.serviceCtx); err != nil {
		return err
	}

	prOpts := []principal.PrincipalOption{principal.WithCollector(s.collector)}
	if s.sessionStore != nil {
		prOpts = append(prOpts, principal.WithSessionStore(s.sessionStore))
	}
	s.principalSvc = principal.NewPrincipal(
		s.cfg.Principal,
		[]principal.Gateway{s.gatewaySvc},
		principal.NewHTTPInvoker(s.logger),
		s.logger,
		prOpts...,
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	gatewayHandler := handlers.NewGatewayHandler(s.gatewaySvc, s.logger)
	principalHandler := handlers.NewPrincipalHandler(s.principalSvc, s.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)

	mux.HandleFunc("POST /v1/resources", gatewayHandler.HandleRegister)
	mux.HandleFunc("GET /v1/resources", gatewayHandler.HandleListResources)
	mux.HandleFunc("GET /v1/resources/{id}", gatewayHandler.HandleGetResource)
	mux.HandleFunc("DELETE /v1/resources/{id}", gatewayHandler.HandleRemove)
	mux.HandleFunc("POST /v1/resources/{id}/activate", gatewayHandler.HandleActivate)
	mux.HandleFunc("POST /v1/resources/{id}/deactivate", gatewayHandler.HandleDeactivate)
	mux.HandleFunc("POST /v1/resources/{id}/outcome", gatewayHandler.HandleReportOutcome)
	mux.HandleFunc("POST /v1/discovery/query", gatewayHandler.HandleQuery)
	mux.HandleFunc("GET /v1/gateway/stats", gatewayHandler.HandleStats)

	mux.HandleFunc("POST /v1/requests", principalHandler.HandleProcess)
	mux.HandleFunc("GET /v1/sessions/{id}", principalHandler.HandleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", principalHandler.HandleEndSession)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		Metrics(s.collector),
	}
	if s.cfg.Server.RateLimit > 0 {
		rlCtx, rlCancel := context.WithCancel(context.Background())
		s.rateLimiterStop = rlCancel
		middlewares = append(middlewares,
			RateLimiter(rlCtx, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger))
	}
	if s.cfg.Auth.JWTSecret != "" {
		skipAuthPaths := []string{"/health", "/ready"}
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:        Chain(mux, middlewares...),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	s.logger.Info("http server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then shuts down.
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	s.Shutdown()
}

// Shutdown drains the listeners and stops the services in dependency order.
func (s *Server) Shutdown() {
	defer close(s.shutdownComplete)

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.rateLimiterStop != nil {
		s.rateLimiterStop()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.gatewaySvc != nil {
		s.gatewaySvc.Stop()
	}
	s.serviceCancel()

	if s.dbPool != nil {
		if err := s.dbPool.Close(); err != nil {
			s.logger.Error("database pool close error", zap.Error(err))
		}
	} else if s.registryStore != nil {
		if err := s.registryStore.Close(); err != nil {
			s.logger.Error("registry store close error", zap.Error(err))
		}
	}
	if s.sessionStore != nil {
		if err := s.sessionStore.Close(); err != nil {
			s.logger.Error("session store close error", zap.Error(err))
		}
	}

	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
