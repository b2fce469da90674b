package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tenant identifies the organization and acting user for a request.
type Tenant struct {
	OrgID  string
	UserID string
}

type tenantCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ContextFields extracts correlation data from ctx: trace, tenant and request.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if t := TenantFromContext(ctx); t != nil {
		fields = append(fields, zap.String("tenant.org", t.OrgID))
		if t.UserID != "" {
			fields = append(fields, zap.String("tenant.user", t.UserID))
		}
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// ValidateID reports whether id is usable as an org, user or request id.
func ValidateID(id, name string) error {
	switch {
	case id == "":
		return fmt.Errorf("%s cannot be empty", name)
	case len(id) > maxIDLen:
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	case !idPattern.MatchString(id):
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// WithTenant adds tenant to context.
// Returns an error if the org id is invalid; the user id is optional.
func WithTenant(ctx context.Context, t Tenant) (context.Context, error) {
	if err := ValidateID(t.OrgID, "org id"); err != nil {
		return ctx, err
	}
	if t.UserID != "" {
		if err := ValidateID(t.UserID, "user id"); err != nil {
			return ctx, err
		}
	}
	return context.WithValue(ctx, tenantCtxKey{}, &t), nil
}

// TenantFromContext extracts tenant from context.
func TenantFromContext(ctx context.Context) *Tenant {
	if t, ok := ctx.Value(tenantCtxKey{}).(*Tenant); ok {
		return t
	}
	return nil
}

// WithRequestID adds request ID to context. Invalid ids are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ValidateID(requestID, "request id") != nil {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
