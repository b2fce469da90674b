package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fyrsmithlabs/firmd/internal/access"
	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/fyrsmithlabs/firmd/internal/report"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("rate limit exceeded")
)

// classify maps an error onto a status code and a stable error code.
// Internal errors never leak their message.
func classify(err error) (int, ErrorBody) {
	var verr *records.ValidationError
	var herr *echo.HTTPError

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_input", Message: "validation failed", Fields: verr.Fields}
	case errors.Is(err, analytics.ErrInvalidRange):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_range", Message: err.Error()}
	case errors.Is(err, records.ErrInvalidInput),
		errors.Is(err, report.ErrUnknownFormat),
		errors.Is(err, report.ErrOrgRequired),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorBody{Code: "unauthenticated", Message: err.Error()}
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, ErrorBody{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, records.ErrInvalidTransition):
		return http.StatusConflict, ErrorBody{Code: "invalid_transition", Message: err.Error()}
	case errors.Is(err, records.ErrConflict):
		return http.StatusConflict, ErrorBody{Code: "conflict", Message: err.Error()}
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, ErrorBody{Code: "rate_limited", Message: err.Error()}
	case errors.As(err, &herr):
		code := strings.ToLower(strings.ReplaceAll(http.StatusText(herr.Code), " ", "_"))
		return herr.Code, ErrorBody{Code: code, Message: fmt.Sprint(herr.Message)}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "internal", Message: "internal server error"}
	}
}

// errorCodeKey carries the ErrorBody code to the metrics middleware.
const errorCodeKey = "firmd.error_code"

// errorHandler writes every error as an ErrorResponse.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := classify(err)
		c.Set(errorCodeKey, body.Code)
		ctx := c.Request().Context()
		if status >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed", zap.String("path", c.Path()), zap.Error(err))
		} else {
			logger.Debug(ctx, "request rejected", zap.Int("status", status), zap.Error(err))
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, ErrorResponse{Error: body})
		}
		if werr != nil {
			logger.Warn(ctx, "failed to write error response", zap.Error(werr))
		}
	}
}
