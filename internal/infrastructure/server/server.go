package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/gamehost/internal/api/http"
	"github.com/GriffinCanCode/gamehost/internal/api/middleware"
	"github.com/GriffinCanCode/gamehost/internal/api/ws"
	"github.com/GriffinCanCode/gamehost/internal/generation"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/gamehost/internal/sandbox"
	"github.com/GriffinCanCode/gamehost/internal/storage"
	"github.com/GriffinCanCode/gamehost/internal/storage/local"
	"github.com/GriffinCanCode/gamehost/internal/storage/objectstore"
	"github.com/GriffinCanCode/gamehost/internal/storage/remote"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	host    *sandbox.Host
	store   storage.Store
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger = logging.OrNop(logger)

	logger.Info("Initializing gamehost server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("generation", cfg.Generation.Enabled()),
	)

	metrics := monitoring.NewMetrics()

	host, err := sandbox.NewHost(cfg.Sandbox,
		sandbox.WithLogger(logger),
		sandbox.WithRecorder(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to start sandbox host: %w", err)
	}

	var breakers []apihttp.BreakerSource
	client := func(name string, svc config.ServiceConfig) *httpclient.Client {
		c := httpclient.New(name, svc.Client(),
			httpclient.WithLogger(logger),
			httpclient.WithRecorder(metrics))
		breakers = append(breakers, c)
		return c
	}

	store, archive, err := openStore(cfg, logger, client)
	if err != nil {
		_ = host.Close()
		return nil, err
	}

	opts := []apihttp.Option{
		apihttp.WithLogger(logger),
		apihttp.WithMetrics(metrics),
		apihttp.WithPool(host),
		apihttp.WithCacheSize(cfg.Analysis.CacheSize),
	}
	if archive != nil {
		opts = append(opts, apihttp.WithArchive(archive))
	}
	if cfg.Generation.Enabled() {
		opts = append(opts, apihttp.WithGenerator(generation.New(client("generation", cfg.Generation), logger)))
		logger.Info("Generation service configured", zap.String("url", cfg.Generation.BaseURL))
	}
	opts = append(opts, apihttp.WithBreakers(breakers...))

	handlers := apihttp.NewHandlers(store, cfg.Storage.Backend, opts...)
	wsHandler := ws.NewHandler(host, store,
		ws.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
		ws.WithMetrics(metrics),
		ws.WithLogger(logger))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers.Register(router)
	router.GET("/stream", wsHandler.HandleConnection)

	if cfg.Server.MetricsEnabled {
		aggregator := apihttp.NewMetricsAggregator(metrics, host, breakers...)
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
		router.GET("/metrics/json", aggregator.GetAggregatedMetrics)
	}

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		host:    host,
		store:   store,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// openStore selects the storage backend. Only the local store supports
// archives.
func openStore(cfg *config.Config, logger *logging.Logger, client func(string, config.ServiceConfig) *httpclient.Client) (storage.Store, apihttp.Archiver, error) {
	switch cfg.Storage.Backend {
	case config.BackendRemote:
		logger.Info("Using remote storage", zap.String("url", cfg.Remote.BaseURL))
		return remote.New(client("storage", cfg.Remote), logger), nil, nil

	case config.BackendS3:
		store, err := objectstore.New(cfg.ObjectStore.Store(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open object store: %w", err)
		}
		logger.Info("Using object storage",
			zap.String("endpoint", cfg.ObjectStore.Endpoint),
			zap.String("bucket", cfg.ObjectStore.Bucket))
		return store, nil, nil

	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = local.DefaultDir()
		}
		store, err := local.New(dir,
			local.WithMax(cfg.Storage.MaxSaved),
			local.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open local storage: %w", err)
		}
		logger.Info("Using local storage", zap.String("dir", dir))
		return store, store, nil
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops. A clean Shutdown
// returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, waits for in-flight requests and
// releases the sandbox host
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if cerr := s.host.Close(); cerr != nil {
		s.logger.Error("Failed to close sandbox host", zap.Error(cerr))
		err = errors.Join(err, cerr)
	}

	_ = s.logger.Sync()
	return err
}
