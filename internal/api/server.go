// Package api exposes the enrichment pipeline over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/enrichment"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/observability"
	"github.com/sisigoks/plantverse-go/internal/observations"
)

// Server is the HTTP server for PlantVerse-Go. It manages the Echo
// instance, middleware, and all routes.
type Server struct {
	echo        *echo.Echo
	settings    *conf.Settings
	coordinator *enrichment.Coordinator
	locator     observations.Locator
	metrics     *observability.Metrics

	slogger   *slog.Logger
	levelVar  *slog.LevelVar
	logCloser func() error
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics attaches the metrics registry and enables the /metrics route.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLocator enables the standalone observation search route.
func WithLocator(l observations.Locator) ServerOption {
	return func(s *Server) {
		s.locator = l
	}
}

// New creates the server and registers all routes. Call Start to begin
// serving.
func New(settings *conf.Settings, coordinator *enrichment.Coordinator, opts ...ServerOption) *Server {
	s := &Server{
		echo:        echo.New(),
		settings:    settings,
		coordinator: coordinator,
		levelVar:    new(slog.LevelVar),
		startTime:   time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.initLogger()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(echomw.Recover())
	s.echo.Use(s.requestLogger())

	s.registerRoutes()
	return s
}

func (s *Server) initLogger() {
	level := slog.LevelInfo
	if s.settings.WebServer.Debug {
		level = slog.LevelDebug
	}
	s.levelVar.Set(level)

	logger, closer, err := logging.NewFileLogger("logs/api.log", "api", s.levelVar)
	if err != nil {
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: s.levelVar})
		s.slogger = slog.New(fbHandler).With("service", "api")
		s.logCloser = func() error { return nil }
		return
	}
	s.slogger = logger
	s.logCloser = closer
}

// requestLogger logs one line per request through the structured logger.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				s.slogger.Warn("request failed", attrs...)
				return nil
			}
			s.slogger.Info("request", attrs...)
			return nil
		},
	})
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.POST("/identify", s.handleIdentify)
	v1.GET("/enrich", s.handleEnrich)
	if s.locator != nil {
		v1.GET("/observations", s.handleObservations)
	}

	s.echo.GET("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start begins serving on the configured listen address. It blocks until
// the server stops.
func (s *Server) Start() error {
	s.slogger.Info("starting HTTP server", "listen", s.settings.WebServer.Listen)
	err := s.echo.Start(s.settings.WebServer.Listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and closes the request log.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if s.logCloser != nil {
		_ = s.logCloser()
	}
	return err
}
