package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/spider-rs/headless-browser/internal/api/http"
	"github.com/spider-rs/headless-browser/internal/api/middleware"
	"github.com/spider-rs/headless-browser/internal/domain/browser"
	"github.com/spider-rs/headless-browser/internal/domain/instance"
	"github.com/spider-rs/headless-browser/internal/domain/version"
	"github.com/spider-rs/headless-browser/internal/infrastructure/config"
	"github.com/spider-rs/headless-browser/internal/infrastructure/logging"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"github.com/spider-rs/headless-browser/internal/infrastructure/resilience"
	"github.com/spider-rs/headless-browser/internal/infrastructure/tracing"
	"github.com/spider-rs/headless-browser/internal/proxy"
)

// ShutdownTimeout bounds the drain of in-flight HTTP requests
const ShutdownTimeout = 5 * time.Second

// Server wraps the control surface, the proxy and their dependencies
type Server struct {
	config       *config.Config
	logger       *logging.Logger
	metrics      *monitoring.Metrics
	tracer       *tracing.Tracer
	registry     *instance.Registry
	orchestrator *browser.Orchestrator
	query        *version.Query
	proxy        *proxy.Proxy
	router       *gin.Engine
	http         *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing headless browser server",
		zap.String("addr", cfg.ServerAddr()),
		zap.String("chrome_address", cfg.Chrome.Address),
		zap.Uint32("chrome_port", cfg.Chrome.Port),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New(logging.ServiceName, logger.Component("tracing"))

	registry := instance.NewRegistry()
	registry.OnChange(metrics.SetInstances)

	connector := resilience.NewConnector(resilience.Settings{
		Idle: registry.IsEmpty,
		OnAttempt: func(_ string, outcome resilience.Outcome) {
			metrics.RecordConnectAttempt(outcome.String())
		},
	}, logger.Component("connector"))

	orchestrator := browser.NewOrchestrator(browser.Options{
		Path:               cfg.Chrome.Path,
		Address:            cfg.Chrome.Address,
		Port:               cfg.Chrome.Port,
		Headless:           cfg.Chrome.Headless,
		GPU:                cfg.Chrome.GPU,
		GL:                 cfg.Chrome.GL,
		Minimal:            cfg.Chrome.NoArgs,
		Brave:              cfg.Chrome.Brave,
		RenderProcessLimit: cfg.Chrome.RenderProcessLimit,
		Extra:              browser.SplitArgs(cfg.Chrome.Args),
	}, registry, logger.Component("browser"), browser.WithMetrics(metrics))

	cache := version.NewCache(cfg.Version.CacheTTL, metrics)
	orchestrator.OnShutdown(cache.Purge)

	query := version.NewQuery(version.Settings{
		Endpoint: cfg.Chrome.Endpoint(),
		Hostname: cfg.Version.Host(),
		Debug:    cfg.Version.DebugJSON,
	}, registry, cache, connector, logger.Component("version"), metrics)

	var relay *proxy.Proxy
	if cfg.Proxy.Enabled {
		rule, err := proxy.PortRule(cfg.Chrome.Port, cfg.ProxyListenPort())
		if err != nil {
			return nil, fmt.Errorf("failed to build proxy rule: %w", err)
		}
		relay = proxy.New(proxy.Config{
			ListenAddr:     cfg.ProxyListenAddr(),
			TargetAddr:     cfg.ProxyTargetAddr(),
			Rule:           rule,
			BufferSize:     cfg.Proxy.BufferSize,
			MaxConnections: cfg.Proxy.MaxConnections,
		}, connector, logger.Component("proxy"),
			proxy.WithMetrics(metrics),
			proxy.WithTracer(tracer),
		)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.RedirectTrailingSlash = false

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.String("scope", cfg.RateLimit.Scope),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		limits.Skip = append(limits.Skip, "/metrics")
		if cfg.RateLimit.Scope == config.RateLimitGlobal {
			router.Use(middleware.GlobalRateLimit(limits))
		} else {
			router.Use(middleware.RateLimit(limits))
		}
	}

	handlers := httpapi.NewHandlers(orchestrator, registry, query, metrics, logger.Component("http"))
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.NoRoute(handlers.NotFound)

	logger.Info("Server initialized successfully")

	return &Server{
		config:       cfg,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		registry:     registry,
		orchestrator: orchestrator,
		query:        query,
		proxy:        relay,
		router:       router,
		http: &http.Server{
			Addr:              cfg.ServerAddr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the control surface router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Orchestrator returns the browser orchestrator
func (s *Server) Orchestrator() *browser.Orchestrator {
	return s.orchestrator
}

// Run launches the initial browser when configured, then serves HTTP and
// the proxy until ctx ends or either listener fails
func (s *Server) Run(ctx context.Context) error {
	if s.config.Chrome.Init {
		if _, err := s.orchestrator.Fork(nil); err != nil {
			s.logger.Warn("Initial browser launch failed", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if s.proxy != nil {
		g.Go(func() error {
			if err := s.proxy.ListenAndServe(gctx); err != nil {
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

// Close terminates tracked browsers and releases resources
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.proxy != nil {
		if err := s.proxy.Close(); err != nil {
			s.logger.Error("Failed to close proxy", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to close proxy: %w", err))
		}
	}

	if n := s.orchestrator.ShutdownAll(); n > 0 {
		s.logger.Info("Terminated browsers", zap.Int("count", n))
	}

	s.tracer.Close()

	// Sync logger before exit
	s.logger.Sync()

	return errors.Join(errs...)
}
