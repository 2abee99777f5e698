// Package preview serves the generated site locally, with Prometheus metrics
// on /metrics.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/photobuilder/internal/logfields"
	"git.home.luguber.info/inful/photobuilder/internal/metrics"
	"git.home.luguber.info/inful/photobuilder/internal/variants"
)

// DefaultAddr is the listen address when none is given.
const DefaultAddr = "127.0.0.1:1313"

const shutdownTimeout = 5 * time.Second

// Server is a static file server for the output directory.
type Server struct {
	e         *echo.Echo
	outputDir string
	logger    *slog.Logger
	reg       *prom.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes reg on /metrics.
func WithMetrics(reg *prom.Registry) Option { return func(s *Server) { s.reg = reg } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds the server. The output directory may not exist yet; requests
// 404 until a build has written it.
func New(outputDir string, opts ...Option) *Server {
	s := &Server{
		e:         echo.New(),
		outputDir: outputDir,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setup()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) setup() {
	e := s.e
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("Request", slog.String("method", v.Method), slog.String("uri", v.URI),
				slog.Int("status", v.Status), slog.Duration("latency", v.Latency))
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(cacheControl)
	e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:  s.outputDir,
		Index: "index.html",
	}))

	e.GET("/healthz", func(c echo.Context) error {
		status := "ok"
		if _, err := os.Stat(s.outputDir); err != nil {
			status = "no output"
		}
		return c.JSON(http.StatusOK, map[string]string{"status": status})
	})
	if s.reg != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.HTTPHandler(s.reg)))
	}
}

// cacheControl marks variants immutable; their URLs change with the width.
// Pages are revalidated so a rebuild shows up on reload.
func cacheControl(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		switch {
		case strings.HasPrefix(path, "/"+variants.ImagesDir+"/"):
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		case path == "/metrics" || path == "/healthz":
			c.Response().Header().Set("Cache-Control", "no-store")
		default:
			c.Response().Header().Set("Cache-Control", "no-cache")
		}
		return next(c)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Preview server listening", slog.String("addr", addr), logfields.Path(s.outputDir))
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("preview server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown preview server: %w", err)
	}
	s.logger.Info("Preview server stopped")
	return nil
}
