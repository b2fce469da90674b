// Package http provides the firmd HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/events"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/fyrsmithlabs/firmd/internal/report"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/firmd/internal/http"

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the API is built on. Records, Analytics, Reports
// and Perf are required.
type Deps struct {
	Records   *records.Service
	Analytics *analytics.Service
	Reports   *report.Generator
	Perf      *perf.Aggregator

	// Hub feeds GET /api/v1/stream. The route is absent when nil.
	Hub *events.Hub
	// Checks run on GET /health, keyed by dependency name.
	Checks map[string]HealthCheck
	// Gatherer backs GET /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	// Meter and Tracer default to the otel globals.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Server provides HTTP endpoints for firmd.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *logging.Logger
	config  *Config
	limiter *orgLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RateLimit is the sustained requests per second allowed per org.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	switch {
	case deps.Records == nil:
		return nil, errors.New("records service cannot be nil")
	case deps.Analytics == nil:
		return nil, errors.New("analytics service cannot be nil")
	case deps.Reports == nil:
		return nil, errors.New("report generator cannot be nil")
	case deps.Perf == nil:
		return nil, errors.New("perf aggregator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		limiter: newOrgLimiter(cfg.RateLimit, cfg.RateBurst, time.Now),
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext(logger))
	e.Use(tracing(deps.Tracer))
	e.Use(NewHTTPMetrics(deps.Meter, logger).MetricsMiddleware())
	e.Use(recordPerf(deps.Perf))
	e.Use(requestLog(logger))

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1", authenticate(), s.limiter.middleware())

	recs := s.deps.Records
	registerCollection(v1, "/clients", recs.Clients, func() *records.Client { return &records.Client{} })
	registerCollection(v1, "/contacts", recs.Contacts, func() *records.Contact { return &records.Contact{} })
	registerCollection(v1, "/cases", recs.Cases, func() *records.Case { return &records.Case{} })
	registerCollection(v1, "/tasks", recs.Tasks, func() *records.Task { return &records.Task{} })
	registerCollection(v1, "/employees", recs.Employees, func() *records.Employee { return &records.Employee{} })
	registerCollection(v1, "/proposals", recs.Proposals, func() *records.Proposal { return &records.Proposal{} })
	registerCollection(v1, "/invoices", recs.Invoices, func() *records.Invoice { return &records.Invoice{} })

	v1.POST("/cases/:id/close", action(recs.CloseCase))
	v1.POST("/tasks/:id/complete", action(recs.CompleteTask))
	v1.POST("/invoices/:id/pay", action(recs.PayInvoice))
	v1.POST("/employees/:id/onboarding/:step", s.handleOnboardingStep)

	a := v1.Group("/analytics")
	a.GET("/dashboard", analyticsHandler(s.deps.Analytics.Dashboard))
	a.GET("/revenue", analyticsHandler(s.deps.Analytics.RevenueTrend))
	a.GET("/cases", analyticsHandler(s.deps.Analytics.CaseMetrics))
	a.GET("/tasks", analyticsHandler(s.deps.Analytics.TaskMetrics))
	a.GET("/clients", analyticsHandler(s.deps.Analytics.ClientGrowth))
	a.POST("/invalidate", s.handleInvalidate)

	v1.GET("/reports/business", s.handleBusinessReport)
	v1.GET("/perf", s.handlePerf)
	if s.deps.Hub != nil {
		v1.GET(streamPath, s.handleStream)
	}
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// handleHealth runs every registered check. Any failure reports 503.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.Checks))}
	code := http.StatusOK
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(code, resp)
}

// Start starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. Open streams are sent a
// going-away close frame first, since hijacked connections are not
// tracked by the http server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.echo.Shutdown(ctx)
}
