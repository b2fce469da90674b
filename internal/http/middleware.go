package http

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/access"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Identity headers read on every /api/v1 request.
const (
	HeaderOrgID  = "X-Org-ID"
	HeaderUserID = "X-User-ID"
	HeaderRoles  = "X-Roles"
)

const principalKey = "principal"

// principal returns the principal set by authenticate.
func principal(c echo.Context) access.Principal {
	p, _ := c.Get(principalKey).(access.Principal)
	return p
}

// requestContext puts the request id and logger into the request context.
func requestContext(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			ctx = logging.WithLogger(ctx, logger)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// tracing starts a server span per request, continuing any incoming trace.
func tracing(tracer trace.Tracer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := tracer.Start(ctx, "http.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("http.method", req.Method)),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			span.SetName(req.Method + " " + normalizePath(c.Path()))
			span.SetAttributes(
				attribute.String("http.route", normalizePath(c.Path())),
				attribute.Int("http.status_code", status),
			)
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
			}
			return err
		}
	}
}

// recordPerf feeds the latency of every routed request into agg.
// Websocket streams are long-lived and skipped.
func recordPerf(agg *perf.Aggregator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if route := c.Path(); route != "" && !strings.HasSuffix(route, streamPath) {
				agg.Record(perf.Sample{
					Name:     c.Request().Method + " " + route,
					Duration: time.Since(start),
					At:       start,
				})
			}
			return err
		}
	}
}

// requestLog logs one line per request. It hands errors to the error
// handler itself so the logged status, and the status seen by the outer
// middleware, is the one written.
func requestLog(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)
			return nil
		}
	}
}

// authenticate builds the principal from the identity headers.
func authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p := access.Principal{
				OrgID:  req.Header.Get(HeaderOrgID),
				UserID: req.Header.Get(HeaderUserID),
				Roles:  access.ParseRoles(req.Header.Get(HeaderRoles)),
			}
			if p.OrgID == "" || p.UserID == "" {
				return fmt.Errorf("%w: %s and %s headers are required", access.ErrUnauthenticated, HeaderOrgID, HeaderUserID)
			}

			ctx, err := logging.WithTenant(req.Context(), logging.Tenant{OrgID: p.OrgID, UserID: p.UserID})
			if err != nil {
				return fmt.Errorf("%w: %v", access.ErrUnauthenticated, err)
			}
			c.SetRequest(req.WithContext(ctx))
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// orgLimiter keeps one token bucket per org. A nil orgLimiter allows
// everything.
type orgLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	now       func() time.Time
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newOrgLimiter(rps float64, burst int, now func() time.Time) *orgLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &orgLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		now:       now,
		entries:   make(map[string]*limiterEntry),
		lastSweep: now(),
	}
}

func (l *orgLimiter) allow(org string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, e := range l.entries {
			if now.Sub(e.seen) > limiterIdle {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[org]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[org] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

func (l *orgLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.allow(principal(c).OrgID) {
				retry := 1
				if l.limit > 0 && l.limit < 1 {
					retry = int(math.Ceil(1 / float64(l.limit)))
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return errRateLimited
			}
			return next(c)
		}
	}
}
