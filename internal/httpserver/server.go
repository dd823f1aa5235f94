// Package httpserver exposes the image cache over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/partscatalog/imagecache/internal/errors"
	"github.com/partscatalog/imagecache/internal/imageprovider"
	"github.com/partscatalog/imagecache/internal/logger"
	"github.com/partscatalog/imagecache/internal/observability"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown when none is configured.
	DefaultShutdownTimeout = 10 * time.Second

	// MaxPreloadRequests caps one POST /api/v1/images/preload body.
	MaxPreloadRequests = 500

	defaultBodyLimit = "1M"
)

// Config holds the listener settings of the server.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	FallbackRef     string
	BatchSize       int
}

// Server serves image lookups, cached blobs and metrics.
type Server struct {
	echo      *echo.Echo
	config    Config
	resolver  imageprovider.KeyResolver
	cache     *imageprovider.BlobCache
	preloader *imageprovider.Preloader
	metrics   *observability.Metrics
	urlFor    func(path string) string
	logger    logger.Logger
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics enables the /metrics endpoint and the request metrics middleware.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPreloader sets the preloader behind POST /api/v1/images/preload.
func WithPreloader(p *imageprovider.Preloader) Option {
	return func(s *Server) { s.preloader = p }
}

// WithObjectURL sets how a remote object path is turned into the url field of lookups.
func WithObjectURL(fn func(path string) string) Option {
	return func(s *Server) { s.urlFor = fn }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server resolving through resolver and serving blobs from cache.
func New(cfg Config, resolver imageprovider.KeyResolver, cache *imageprovider.BlobCache, opts ...Option) (*Server, error) {
	if resolver == nil || cache == nil {
		return nil, errors.Newf("httpserver requires a resolver and a blob cache").
			Component("httpserver").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.FallbackRef == "" {
		cfg.FallbackRef = imageprovider.DefaultFallbackRef
	}

	s := &Server{
		config:    cfg,
		resolver:  resolver,
		cache:     cache,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Global().Module("httpserver")
	}
	if s.preloader == nil {
		s.preloader = imageprovider.NewPreloader(resolver, imageprovider.PreloaderConfig{
			Fallback: cfg.FallbackRef,
		})
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.setupMiddleware()
	s.setupRoutes()

	s.logger.Info("HTTP server initialized",
		logger.String("address", cfg.Listen),
		logger.Bool("metrics", s.metrics != nil))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(requestID())
	s.echo.Use(requestLogger(s.logger))
	if s.metrics != nil {
		s.echo.Use(httpMetrics(s.metrics))
	}
	s.echo.Use(echomw.BodyLimit(defaultBodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	s.echo.GET("/blobs/:id", s.getBlob)

	v1 := s.echo.Group("/api/v1/images")
	v1.POST("/preload", s.preload)
	v1.GET("/:folder", s.getImage)
	v1.GET("/:folder/raw", s.getImageRaw)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Listen).
			Build()
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"cache_entries": s.cache.Len(),
		"cache_bytes":   s.cache.MemoryUsage(),
		"uptime":        time.Since(s.startTime).Round(time.Second).String(),
	})
}
