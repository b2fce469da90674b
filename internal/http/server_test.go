package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/events"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"github.com/fyrsmithlabs/firmd/internal/report"
	"github.com/fyrsmithlabs/firmd/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type identity struct {
	org, user, roles string
}

var (
	partner   = identity{"acme", "u1", "partner"}
	assistant = identity{"acme", "u2", "assistant"}
	outsider  = identity{"globex", "u9", "partner"}
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	an := analytics.NewService(st, analytics.NewCache(time.Minute))
	hub := events.NewHub()
	t.Cleanup(hub.Close)
	return Deps{
		Records:   records.NewService(st, records.WithInvalidator(an), records.WithPublisher(hub)),
		Analytics: an,
		Reports:   report.NewGenerator(an, report.DefaultThresholds()),
		Perf:      perf.NewAggregator(0),
		Hub:       hub,
		Checks:    map[string]HealthCheck{"store": st.Ping},
		Gatherer:  prometheus.NewRegistry(),
	}
}

func setupTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	s, err := NewServer(testDeps(t), logging.NewNop(), cfg)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, id identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if id.org != "" {
		req.Header.Set(HeaderOrgID, id.org)
		req.Header.Set(HeaderUserID, id.user)
		req.Header.Set(HeaderRoles, id.roles)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createClient(t *testing.T, s *Server, id identity, name string) *records.Client {
	t.Helper()
	rec := do(t, s, id, http.MethodPost, "/api/v1/clients", map[string]any{"name": name, "kind": "company"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*records.Client](t, rec)
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(testDeps(t), logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
		assert.Nil(t, s.limiter)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(testDeps(t), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when a service is missing", func(t *testing.T) {
		deps := testDeps(t)
		deps.Reports = nil
		_, err := NewServer(deps, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "report generator")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := setupTestServer(t, nil)
		rec := do(t, s, identity{}, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Checks["store"])
	})

	t.Run("degraded", func(t *testing.T) {
		deps := testDeps(t)
		deps.Checks["events"] = func(context.Context) error { return errors.New("nats: no servers") }
		s, err := NewServer(deps, logging.NewNop(), nil)
		require.NoError(t, err)

		rec := do(t, s, identity{}, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "nats: no servers", resp.Checks["events"])
		assert.Equal(t, "ok", resp.Checks["store"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	rec := do(t, s, identity{}, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := setupTestServer(t, nil)

	t.Run("missing headers", func(t *testing.T) {
		rec := do(t, s, identity{}, http.MethodGet, "/api/v1/clients", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, rec).Error.Code)
	})

	t.Run("invalid org id", func(t *testing.T) {
		rec := do(t, s, identity{"acme corp", "u1", "partner"}, http.MethodGet, "/api/v1/clients", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("forbidden role", func(t *testing.T) {
		rec := do(t, s, assistant, http.MethodPost, "/api/v1/clients", map[string]any{"name": "Acme", "kind": "company"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error.Code)
	})
}

func TestClientCRUD(t *testing.T) {
	s := setupTestServer(t, nil)

	created := createClient(t, s, partner, "Initech")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "acme", created.OrgID)
	assert.Equal(t, records.ClientProspect, created.State)
	createClient(t, s, partner, "Hooli")

	path := "/api/v1/clients/" + created.ID

	rec := do(t, s, assistant, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Initech", decode[*records.Client](t, rec).Name)

	rec = do(t, s, partner, http.MethodGet, "/api/v1/clients?q=init", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse[*records.Client]](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)
	assert.Equal(t, records.DefaultListLimit, list.Limit)

	rec = do(t, s, partner, http.MethodGet, "/api/v1/clients?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[ListResponse[*records.Client]](t, rec)
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Offset)

	created.State = records.ClientActive
	rec = do(t, s, partner, http.MethodPut, path, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, records.ClientActive, decode[*records.Client](t, rec).State)

	rec = do(t, s, partner, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, partner, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Error.Code)
}

func TestValidationErrors(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, partner, http.MethodPost, "/api/v1/clients", map[string]any{"kind": "alien", "email": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec).Error
	assert.Equal(t, "invalid_input", body.Code)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "kind")
	assert.Contains(t, body.Fields, "email")

	rec = do(t, s, partner, http.MethodGet, "/api/v1/clients?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOrgID, "acme")
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderRoles, "partner")
	raw := httptest.NewRecorder()
	s.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestTenantIsolation(t *testing.T) {
	s := setupTestServer(t, nil)
	c := createClient(t, s, partner, "Initech")

	rec := do(t, s, outsider, http.MethodGet, "/api/v1/clients/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, outsider, http.MethodGet, "/api/v1/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ListResponse[*records.Client]](t, rec).Items)
}

func TestActions(t *testing.T) {
	s := setupTestServer(t, nil)
	c := createClient(t, s, partner, "Initech")

	rec := do(t, s, partner, http.MethodPost, "/api/v1/cases", map[string]any{"client_id": c.ID, "title": "Audit"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	kase := decode[*records.Case](t, rec)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/cases/"+kase.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decode[*records.Case](t, rec)
	assert.Equal(t, records.CaseClosed, closed.State)
	assert.NotNil(t, closed.ClosedAt)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/cases/"+kase.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error.Code)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/invoices", map[string]any{
		"client_id": c.ID, "number": "INV-1", "amount_cents": 125000, "status": "issued",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decode[*records.Invoice](t, rec)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/invoices/"+inv.ID+"/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, records.InvoicePaid, decode[*records.Invoice](t, rec).State)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/invoices", map[string]any{
		"client_id": c.ID, "number": "INV-1", "amount_cents": 100,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Error.Code)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/employees", map[string]any{
		"first_name": "Ada", "last_name": "Lovelace", "email": "ada@acme.test", "position": "Analyst",
		"start_date": "2026-09-01T00:00:00Z",
		"onboarding_steps": []map[string]any{{"name": "laptop"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decode[*records.Employee](t, rec)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/employees/"+emp.ID+"/onboarding/laptop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, records.EmployeeActive, decode[*records.Employee](t, rec).State)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/employees/"+emp.ID+"/onboarding/badge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	createClient(t, s, partner, "Initech")

	for _, path := range []string{"dashboard", "revenue", "cases", "tasks", "clients"} {
		rec := do(t, s, partner, http.MethodGet, "/api/v1/analytics/"+path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := do(t, s, partner, http.MethodGet, "/api/v1/analytics/revenue?from=2026-01&to=2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	months := decode[[]analytics.MonthlyValue](t, rec)
	require.Len(t, months, 3)
	assert.Equal(t, "2026-01", months[0].Month)

	rec = do(t, s, partner, http.MethodGet, "/api/v1/analytics/revenue?from=January", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", decode[ErrorResponse](t, rec).Error.Code)

	rec = do(t, s, assistant, http.MethodGet, "/api/v1/analytics/dashboard", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, partner, http.MethodPost, "/api/v1/analytics/invalidate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Positive(t, decode[InvalidateResponse](t, rec).Invalidated)
}

func TestBusinessReport(t *testing.T) {
	s := setupTestServer(t, nil)

	rec := do(t, s, partner, http.MethodGet, "/api/v1/reports/business?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Business Report"))

	rec = do(t, s, partner, http.MethodGet, "/api/v1/reports/business", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[report.Report](t, rec)
	assert.Equal(t, "acme", rep.OrgID)

	rec = do(t, s, partner, http.MethodGet, "/api/v1/reports/business?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerfEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	createClient(t, s, partner, "Initech")

	rec := do(t, s, partner, http.MethodGet, "/api/v1/perf?slow=0s", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[perf.Report](t, rec)

	names := make([]string, 0, len(rep.Stats))
	for _, st := range rep.Stats {
		names = append(names, st.Name)
	}
	assert.Contains(t, names, "POST /api/v1/clients")

	rec = do(t, s, partner, http.MethodGet, "/api/v1/perf?slow=fast", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := setupTestServer(t, &Config{Host: "localhost", Port: 8080, RateLimit: 0.5, RateBurst: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, s, partner, http.MethodGet, "/api/v1/clients", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, partner, http.MethodGet, "/api/v1/clients", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[ErrorResponse](t, rec).Error.Code)

	rec = do(t, s, outsider, http.MethodGet, "/api/v1/clients", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrgLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	l := newOrgLimiter(1, 1, func() time.Time { return now })

	assert.True(t, l.allow("acme"))
	assert.False(t, l.allow("acme"))
	assert.True(t, l.allow("globex"))
	assert.Len(t, l.entries, 2)

	now = now.Add(limiterIdle + time.Second)
	assert.True(t, l.allow("acme"))
	assert.Len(t, l.entries, 1)

	var disabled *orgLimiter
	assert.True(t, disabled.allow("anyone"))
}

func TestRequestLog(t *testing.T) {
	deps := testDeps(t)
	tl := logging.NewTestLogger()
	s, err := NewServer(deps, tl.Logger, nil)
	require.NoError(t, err)

	do(t, s, partner, http.MethodGet, "/api/v1/clients", nil)
	tl.AssertLogged(t, zapcore.InfoLevel, "http request")

	entries := tl.FilterMessage("http request").All()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, "acme", fields["tenant.org"])
	assert.NotEmpty(t, fields["request.id"])
}
