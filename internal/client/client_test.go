package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
	"github.com/fyrsmithlabs/firmd/internal/perf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var partner = Identity{OrgID: "acme", UserID: "u1", Roles: "partner"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Health(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			writeJSON(w, http.StatusOK, httpserver.HealthResponse{Status: "ok", Checks: map[string]string{"store": "ok"}})
		}))
		defer srv.Close()

		h, err := New(srv.URL+"/", Identity{}).Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", h.Status)
	})

	t.Run("degraded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, httpserver.HealthResponse{
				Status: "degraded",
				Checks: map[string]string{"store": "ok", "events": "events: not connected"},
			})
		}))
		defer srv.Close()

		h, err := New(srv.URL, Identity{}).Health(context.Background())
		require.Error(t, err)
		assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
		assert.Contains(t, err.Error(), "events: events: not connected")
		assert.Equal(t, "degraded", h.Status)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		_, err := New(srv.URL, Identity{}).Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send request")
	})
}

func TestClient_Dashboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analytics/dashboard", r.URL.Path)
		assert.Equal(t, "acme", r.Header.Get(httpserver.HeaderOrgID))
		assert.Equal(t, "u1", r.Header.Get(httpserver.HeaderUserID))
		assert.Equal(t, "partner", r.Header.Get(httpserver.HeaderRoles))
		assert.Equal(t, "2026-01", r.URL.Query().Get("from"))
		assert.Empty(t, r.URL.Query().Get("to"))
		writeJSON(w, http.StatusOK, analytics.Dashboard{
			Revenue: []analytics.MonthlyValue{{Month: "2026-01", Value: 1250}},
			Cases:   analytics.CaseMetrics{Total: 4, Closed: 3, ClosureRate: 75},
		})
	}))
	defer srv.Close()

	d, err := New(srv.URL, partner).Dashboard(context.Background(), "2026-01", "")
	require.NoError(t, err)
	require.Len(t, d.Revenue, 1)
	assert.Equal(t, 1250.0, d.Revenue[0].Value)
	assert.Equal(t, 75.0, d.Cases.ClosureRate)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, httpserver.ErrorResponse{Error: httpserver.ErrorBody{
			Code:    "forbidden",
			Message: "forbidden: missing analytics:read",
		}})
	}))
	defer srv.Close()

	_, err := New(srv.URL, partner).Dashboard(context.Background(), "", "")
	require.Error(t, err)

	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)
	assert.Equal(t, "forbidden", ae.Code)
	assert.Contains(t, err.Error(), "missing analytics:read")
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, partner).Report(context.Background(), "markdown", "", "")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestClient_Report(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports/business", r.URL.Path)
		assert.Equal(t, "markdown", r.URL.Query().Get("format"))
		assert.Equal(t, "2026-06", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte("# Business Report\n"))
	}))
	defer srv.Close()

	body, err := New(srv.URL, partner).Report(context.Background(), "markdown", "", "2026-06")
	require.NoError(t, err)
	assert.Equal(t, "# Business Report\n", string(body))
}

func TestClient_Perf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "250ms", r.URL.Query().Get("slow"))
		writeJSON(w, http.StatusOK, perf.Report{
			Stats: []perf.Stats{{Name: "GET /api/v1/clients", Count: 3, P95: 300 * time.Millisecond}},
			Slow:  []string{"GET /api/v1/clients"},
		})
	}))
	defer srv.Close()

	r, err := New(srv.URL, partner).Perf(context.Background(), 250*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, r.Stats, 1)
	assert.Equal(t, 300*time.Millisecond, r.Stats[0].P95)
	assert.Equal(t, []string{"GET /api/v1/clients"}, r.Slow)
	assert.Equal(t, 250*time.Millisecond, r.Threshold)
}

func TestClient_InvalidateAnalytics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusOK, httpserver.InvalidateResponse{Invalidated: 4})
	}))
	defer srv.Close()

	n, err := New(srv.URL, partner).InvalidateAnalytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
