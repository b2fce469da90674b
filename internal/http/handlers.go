package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/access"
	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/fyrsmithlabs/firmd/internal/report"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// collection serves CRUD for one record kind.
type collection[T records.Record] struct {
	col    *records.Collection[T]
	newRec func() T
}

func registerCollection[T records.Record](g *echo.Group, path string, col *records.Collection[T], newRec func() T) {
	h := &collection[T]{col: col, newRec: newRec}
	g.GET(path, h.list)
	g.POST(path, h.create)
	g.GET(path+"/:id", h.get)
	g.PUT(path+"/:id", h.update)
	g.DELETE(path+"/:id", h.delete)
}

func (h *collection[T]) list(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	items, err := h.col.List(c.Request().Context(), principal(c), opts)
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	opts = opts.Normalize()
	return c.JSON(http.StatusOK, ListResponse[T]{Items: items, Limit: opts.Limit, Offset: opts.Offset})
}

func (h *collection[T]) create(c echo.Context) error {
	rec := h.newRec()
	if err := c.Bind(rec); err != nil {
		return err
	}
	out, err := h.col.Create(c.Request().Context(), principal(c), rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *collection[T]) get(c echo.Context) error {
	out, err := h.col.Get(c.Request().Context(), principal(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *collection[T]) update(c echo.Context) error {
	rec := h.newRec()
	if err := c.Bind(rec); err != nil {
		return err
	}
	out, err := h.col.Update(c.Request().Context(), principal(c), c.Param("id"), rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *collection[T]) delete(c echo.Context) error {
	if err := h.col.Delete(c.Request().Context(), principal(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// listOptions reads limit, offset, status, q and client_id.
func listOptions(c echo.Context) (records.ListOptions, error) {
	opts := records.ListOptions{
		Status:   c.QueryParam("status"),
		Search:   c.QueryParam("q"),
		ClientID: c.QueryParam("client_id"),
	}
	var err error
	if opts.Limit, err = intParam(c, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = intParam(c, "offset"); err != nil {
		return opts, err
	}
	return opts, nil
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

// action adapts a single-record status change to a handler.
func action[T any](fn func(context.Context, access.Principal, string) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		out, err := fn(c.Request().Context(), principal(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleOnboardingStep(c echo.Context) error {
	out, err := s.deps.Records.CompleteOnboardingStep(c.Request().Context(), principal(c), c.Param("id"), c.Param("step"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// analyticsHandler serves one analytics query over the from/to range.
func analyticsHandler[T any](fn func(context.Context, string, analytics.Range) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := principal(c)
		if err := access.Check(p, access.AnalyticsRead); err != nil {
			return err
		}
		r, err := analytics.ParseRange(c.QueryParam("from"), c.QueryParam("to"))
		if err != nil {
			return err
		}
		out, err := fn(c.Request().Context(), p.OrgID, r)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleInvalidate(c echo.Context) error {
	p := principal(c)
	if err := access.Check(p, access.AnalyticsRead); err != nil {
		return err
	}
	n := s.deps.Analytics.Invalidate(p.OrgID)
	s.logger.Info(c.Request().Context(), "analytics cache invalidated", zap.Int("entries", n))
	return c.JSON(http.StatusOK, InvalidateResponse{Invalidated: n})
}

func (s *Server) handleBusinessReport(c echo.Context) error {
	p := principal(c)
	if err := access.Check(p, access.AnalyticsRead); err != nil {
		return err
	}
	format, err := report.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}
	r, err := analytics.ParseRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return err
	}

	rep, err := s.deps.Reports.Generate(c.Request().Context(), p.OrgID, report.Options{Range: r, Format: format})
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, rep, format); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return c.Blob(http.StatusOK, report.ContentType(format), buf.Bytes())
}

// handlePerf returns latency stats for every route. slow is a duration
// such as "250ms"; routes whose p95 exceeds it are listed as slow.
func (s *Server) handlePerf(c echo.Context) error {
	if err := access.Check(principal(c), access.AnalyticsRead); err != nil {
		return err
	}
	var threshold time.Duration
	if v := c.QueryParam("slow"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: slow must be a duration such as 250ms", errBadRequest)
		}
		threshold = d
	}
	return c.JSON(http.StatusOK, perf.NewReport(s.deps.Perf, threshold))
}
