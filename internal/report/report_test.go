package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/config"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeSource struct {
	revenue []analytics.MonthlyValue
	cases   analytics.CaseMetrics
	tasks   analytics.TaskMetrics
	clients analytics.ClientGrowth
	err     error
	ranges  []analytics.Range
}

func (f *fakeSource) RevenueTrend(_ context.Context, _ string, r analytics.Range) ([]analytics.MonthlyValue, error) {
	f.ranges = append(f.ranges, r)
	return f.revenue, f.err
}

func (f *fakeSource) CaseMetrics(context.Context, string, analytics.Range) (analytics.CaseMetrics, error) {
	return f.cases, nil
}

func (f *fakeSource) TaskMetrics(context.Context, string, analytics.Range) (analytics.TaskMetrics, error) {
	return f.tasks, nil
}

func (f *fakeSource) ClientGrowth(context.Context, string, analytics.Range) (analytics.ClientGrowth, error) {
	return f.clients, nil
}

var fixedNow = time.Date(2026, 6, 20, 8, 30, 0, 0, time.UTC)

func healthySource() *fakeSource {
	return &fakeSource{
		revenue: []analytics.MonthlyValue{
			{Month: "2026-04", Value: 1000},
			{Month: "2026-05", Value: 1500},
			{Month: "2026-06", Value: 1600},
		},
		cases: analytics.CaseMetrics{
			ByStatus: map[string]int{"open": 2, "closed": 8},
			Total:    10, Open: 2, Closed: 8,
			ClosureRate: 80, AvgResolutionDays: 12,
		},
		tasks: analytics.TaskMetrics{Total: 20, Completed: 18, Overdue: 1, CompletionRate: 90, OverdueRate: 5},
		clients: analytics.ClientGrowth{
			Starting: 20, NewTotal: 3,
			Months: []analytics.GrowthPoint{{Month: "2026-04"}, {Month: "2026-05"}, {Month: "2026-06"}},
		},
	}
}

func mustRange(t *testing.T) analytics.Range {
	t.Helper()
	r, err := analytics.ParseRange("2026-04", "2026-06")
	require.NoError(t, err)
	return r
}

func TestGenerate_Healthy(t *testing.T) {
	logger := logging.NewTestLogger()
	g := NewGenerator(healthySource(), DefaultThresholds(), WithClock(func() time.Time { return fixedNow }), WithLogger(logger.Logger))

	r, err := g.Generate(context.Background(), "org1", Options{Range: mustRange(t)})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "org1", r.OrgID)
	assert.Equal(t, fixedNow, r.GeneratedAt)
	assert.Equal(t, FormatJSON, r.Format)

	rev := r.Sections.Revenue
	assert.InDelta(t, 4100, rev.Total, 1e-9)
	assert.InDelta(t, 4100.0/3, rev.MonthlyAverage, 1e-9)
	assert.Equal(t, "2026-06", rev.BestMonth)
	assert.InDelta(t, 50.0, rev.ChangePct, 1e-9, "June is in progress, so May is compared with April")
	assert.Equal(t, "2026-05", rev.ChangeMonth)

	assert.InDelta(t, 15.0, r.Sections.Clients.GrowthPct, 1e-9)
	assert.InDelta(t, 1.0, r.Sections.Clients.MonthlyAverage, 1e-9)
	assert.Equal(t, 23, r.Sections.Clients.Ending)

	require.Len(t, r.Recommendations, 1)
	assert.Equal(t, AreaOverview, r.Recommendations[0].Area)
	assert.Equal(t, "All indicators within targets", r.Recommendations[0].Message)
	assert.NotContains(t, r.Summary, "recommendations")

	logger.AssertLogged(t, zapcore.InfoLevel, "business report generated")
}

func TestGenerate_Recommendations(t *testing.T) {
	src := &fakeSource{
		revenue: []analytics.MonthlyValue{
			{Month: "2026-04", Value: 1000},
			{Month: "2026-05", Value: 800},
			{Month: "2026-06", Value: 50},
		},
		cases: analytics.CaseMetrics{Total: 10, Closed: 4, Open: 6, ClosureRate: 40, AvgResolutionDays: 45},
		tasks: analytics.TaskMetrics{Total: 10, Completed: 6, Overdue: 2, CompletionRate: 60, OverdueRate: 20},
	}
	g := NewGenerator(src, DefaultThresholds(), WithClock(func() time.Time { return fixedNow }))

	r, err := g.Generate(context.Background(), "org1", Options{})
	require.NoError(t, err)

	var areas []Area
	for _, rec := range r.Recommendations {
		areas = append(areas, rec.Area)
	}
	assert.Equal(t, []Area{AreaRevenue, AreaCases, AreaCases, AreaTasks, AreaTasks, AreaClients}, areas)
	assert.Contains(t, r.Recommendations[0].Message, "-20.0%")
	assert.Contains(t, r.Summary, "6 recommendations")
	assert.Equal(t, "2025-07..2026-06", r.Range.String(), "empty range defaults to last twelve months")
}

func TestRecommend_BoundaryValues(t *testing.T) {
	th := DefaultThresholds()
	s := Sections{
		Revenue: RevenueSection{ChangePct: -10, ChangeMonth: "2026-05", Monthly: make([]analytics.MonthlyValue, 3)},
		Cases:   CaseSection{Total: 2, Closed: 1, ClosureRate: 50, AvgResolutionDays: 30},
		Tasks:   TaskSection{Total: 1, CompletionRate: 70, OverduePct: 15},
		Clients: ClientSection{NewTotal: 1},
	}
	recs := recommend(s, th)
	require.Len(t, recs, 1, "values exactly at a threshold do not trigger")
	assert.Equal(t, AreaOverview, recs[0].Area)
}

func TestRecommend_SkipsEmptySections(t *testing.T) {
	recs := recommend(Sections{Clients: ClientSection{NewTotal: 2}}, DefaultThresholds())
	require.Len(t, recs, 1)
	assert.Equal(t, AreaOverview, recs[0].Area)
}

func TestGenerate_Errors(t *testing.T) {
	g := NewGenerator(&fakeSource{err: errors.New("boom")}, DefaultThresholds())

	_, err := g.Generate(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrOrgRequired)

	_, err = g.Generate(context.Background(), "org1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revenue trend: boom")

	bad, err := analytics.ParseRange("2026-05", "2026-01")
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "org1", Options{Range: bad})
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)
}

func TestRevenueSection_ChangeMonth(t *testing.T) {
	monthly := []analytics.MonthlyValue{
		{Month: "2026-04", Value: 1000},
		{Month: "2026-05", Value: 1200},
		{Month: "2026-06", Value: 100},
	}

	t.Run("skips the month in progress", func(t *testing.T) {
		s := revenueSection(monthly, "2026-06")
		assert.Equal(t, "2026-05", s.ChangeMonth)
		assert.InDelta(t, 20.0, s.ChangePct, 1e-9)
		for _, rec := range recommend(Sections{Revenue: s}, DefaultThresholds()) {
			assert.NotEqual(t, AreaRevenue, rec.Area, "a partial month must not read as a decline")
		}
	})

	t.Run("past range uses its last month", func(t *testing.T) {
		s := revenueSection(monthly, "2026-09")
		assert.Equal(t, "2026-06", s.ChangeMonth)
		assert.InDelta(t, -91.666666, s.ChangePct, 1e-5)
	})

	t.Run("one complete month has no change", func(t *testing.T) {
		s := revenueSection(monthly[1:], "2026-06")
		assert.Empty(t, s.ChangeMonth)
		assert.Zero(t, s.ChangePct)
		for _, rec := range recommend(Sections{Revenue: s}, DefaultThresholds()) {
			assert.NotEqual(t, AreaRevenue, rec.Area)
		}
	})

	t.Run("empty", func(t *testing.T) {
		s := revenueSection(nil, "2026-06")
		assert.Empty(t, s.ChangeMonth)
		assert.Zero(t, s.Total)
	})
}

func TestChangePct(t *testing.T) {
	assert.Equal(t, 0.0, changePct(0, 100))
	assert.InDelta(t, 50.0, changePct(100, 150), 1e-9)
	assert.InDelta(t, -100.0, changePct(100, 0), 1e-9)
}

func TestClientSection_NoBaseline(t *testing.T) {
	assert.Equal(t, 100.0, clientSection(analytics.ClientGrowth{NewTotal: 4}).GrowthPct)
	assert.Equal(t, 0.0, clientSection(analytics.ClientGrowth{}).GrowthPct)
}

func TestThresholdsFromConfig(t *testing.T) {
	th := ThresholdsFromConfig(config.ReportConfig{MinClosureRate: 65})
	assert.Equal(t, 65.0, th.MinClosureRate)
	assert.Equal(t, DefaultThresholds().MaxOverduePct, th.MaxOverduePct)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":         FormatJSON,
		"JSON":     FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
		"text":     FormatText,
		"console":  FormatConsole,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRender(t *testing.T) {
	g := NewGenerator(healthySource(), DefaultThresholds(), WithClock(func() time.Time { return fixedNow }))
	r, err := g.Generate(context.Background(), "org1", Options{Range: mustRange(t)})
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatJSON))
		var decoded Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, r.ID, decoded.ID)
		assert.Equal(t, r.Sections.Cases.ByStatus, decoded.Sections.Cases.ByStatus)
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatMarkdown))
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "# Business Report"))
		assert.Contains(t, out, "| 2026-05 | 1500.00 |")
		assert.Contains(t, out, "- Closure rate: 80.0%")
		assert.Contains(t, out, "## Recommendations")
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatText))
		out := buf.String()
		assert.Contains(t, out, "BUSINESS REPORT")
		assert.Contains(t, out, "Period: 2026-04..2026-06")
		assert.Contains(t, out, "1. All indicators within targets")
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r, FormatConsole))
		assert.Contains(t, buf.String(), "All indicators within targets")
	})

	t.Run("unknown", func(t *testing.T) {
		assert.ErrorIs(t, Render(&bytes.Buffer{}, r, Format("pdf")), ErrUnknownFormat)
	})
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", ContentType(FormatJSON))
	assert.Contains(t, ContentType(FormatMarkdown), "text/markdown")
	assert.Contains(t, ContentType(FormatText), "text/plain")
}
