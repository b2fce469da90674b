// Package report builds the periodic business report: four analytics
// queries reduced to totals, rates and threshold-driven recommendations.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fyrsmithlabs/firmd/internal/report"

// ErrOrgRequired is returned when Generate is called without an org.
var ErrOrgRequired = errors.New("org_id is required")

// Source provides the aggregated analytics a report is built from.
type Source interface {
	RevenueTrend(ctx context.Context, org string, r analytics.Range) ([]analytics.MonthlyValue, error)
	CaseMetrics(ctx context.Context, org string, r analytics.Range) (analytics.CaseMetrics, error)
	TaskMetrics(ctx context.Context, org string, r analytics.Range) (analytics.TaskMetrics, error)
	ClientGrowth(ctx context.Context, org string, r analytics.Range) (analytics.ClientGrowth, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLogger sets the generator logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithTracer sets the tracer used for report spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) { g.tracer = t }
}

// Generator produces business reports.
type Generator struct {
	source     Source
	thresholds Thresholds
	now        func() time.Time
	logger     *logging.Logger
	tracer     trace.Tracer
}

// NewGenerator creates a report generator.
func NewGenerator(source Source, thresholds Thresholds, opts ...Option) *Generator {
	g := &Generator{
		source:     source,
		thresholds: thresholds,
		now:        time.Now,
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate fetches revenue, cases, tasks and client growth for org and
// builds a report.
func (g *Generator) Generate(ctx context.Context, org string, opts Options) (_ *Report, err error) {
	if org == "" {
		return nil, ErrOrgRequired
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	now := g.now()
	r, err := opts.Range.Resolve(now)
	if err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "report.generate", trace.WithAttributes(
		attribute.String("tenant.org", org),
		attribute.String("range", r.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	revenue, err := g.source.RevenueTrend(ctx, org, r)
	if err != nil {
		return nil, fmt.Errorf("revenue trend: %w", err)
	}
	cases, err := g.source.CaseMetrics(ctx, org, r)
	if err != nil {
		return nil, fmt.Errorf("case metrics: %w", err)
	}
	tasks, err := g.source.TaskMetrics(ctx, org, r)
	if err != nil {
		return nil, fmt.Errorf("task metrics: %w", err)
	}
	clients, err := g.source.ClientGrowth(ctx, org, r)
	if err != nil {
		return nil, fmt.Errorf("client growth: %w", err)
	}

	report := &Report{
		ID:          uuid.New().String(),
		OrgID:       org,
		GeneratedAt: now.UTC(),
		Range:       r,
		Format:      opts.Format,
		Thresholds:  g.thresholds,
		Sections: Sections{
			Revenue: revenueSection(revenue, now.UTC().Format("2006-01")),
			Cases:   caseSection(cases),
			Tasks:   taskSection(tasks),
			Clients: clientSection(clients),
		},
	}
	report.Recommendations = recommend(report.Sections, g.thresholds)
	report.Summary = summarize(report)

	g.logger.Info(ctx, "business report generated",
		zap.String("report_id", report.ID),
		zap.String("range", r.String()),
		zap.Int("recommendations", len(report.Recommendations)))
	return report, nil
}

// revenueSection totals monthly revenue. The month-over-month change is
// taken between the last two complete months, so current, the month in
// progress, is left out of it.
func revenueSection(monthly []analytics.MonthlyValue, current string) RevenueSection {
	s := RevenueSection{Monthly: monthly}
	if len(monthly) == 0 {
		return s
	}
	for _, m := range monthly {
		s.Total += m.Value
		if s.BestMonth == "" || m.Value > s.BestMonthValue {
			s.BestMonth, s.BestMonthValue = m.Month, m.Value
		}
	}
	s.MonthlyAverage = s.Total / float64(len(monthly))
	complete := monthly
	if n := len(complete); complete[n-1].Month == current {
		complete = complete[:n-1]
	}
	if n := len(complete); n >= 2 {
		s.ChangePct = changePct(complete[n-2].Value, complete[n-1].Value)
		s.ChangeMonth = complete[n-1].Month
	}
	return s
}

// changePct is the relative change from prev to cur. Without a baseline
// there is no change to report.
func changePct(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func caseSection(m analytics.CaseMetrics) CaseSection {
	return CaseSection{
		Total:             m.Total,
		Open:              m.Open,
		Closed:            m.Closed,
		ClosureRate:       m.ClosureRate,
		AvgResolutionDays: m.AvgResolutionDays,
		ByStatus:          m.ByStatus,
	}
}

func taskSection(m analytics.TaskMetrics) TaskSection {
	return TaskSection{
		Total:          m.Total,
		Completed:      m.Completed,
		Overdue:        m.Overdue,
		CompletionRate: m.CompletionRate,
		OverduePct:     m.OverdueRate,
	}
}

func clientSection(g analytics.ClientGrowth) ClientSection {
	s := ClientSection{
		NewTotal: g.NewTotal,
		Starting: g.Starting,
		Ending:   g.Starting + g.NewTotal,
	}
	if n := len(g.Months); n > 0 {
		s.MonthlyAverage = float64(g.NewTotal) / float64(n)
	}
	switch {
	case g.Starting > 0:
		s.GrowthPct = float64(g.NewTotal) / float64(g.Starting) * 100
	case g.NewTotal > 0:
		s.GrowthPct = 100
	}
	return s
}

// recommend compares the sections against the thresholds. Checks on a
// section are skipped when it has no data.
func recommend(s Sections, t Thresholds) []Recommendation {
	var recs []Recommendation

	if s.Revenue.ChangeMonth != "" && s.Revenue.ChangePct < t.RevenueDeclinePct {
		recs = append(recs, Recommendation{
			Area: AreaRevenue,
			Message: fmt.Sprintf("Revenue declining: %.1f%% month over month. Review pipeline and outstanding invoices",
				s.Revenue.ChangePct),
		})
	}

	if s.Cases.Total > 0 && s.Cases.ClosureRate < t.MinClosureRate {
		recs = append(recs, Recommendation{
			Area: AreaCases,
			Message: fmt.Sprintf("Case closure rate is %.1f%% (target %.0f%%). Prioritize the open case backlog",
				s.Cases.ClosureRate, t.MinClosureRate),
		})
	}
	if s.Cases.Closed > 0 && s.Cases.AvgResolutionDays > t.MaxResolutionDays {
		recs = append(recs, Recommendation{
			Area: AreaCases,
			Message: fmt.Sprintf("Cases take %.1f days to resolve on average (target %.0f). Review case handling times",
				s.Cases.AvgResolutionDays, t.MaxResolutionDays),
		})
	}

	if s.Tasks.Total > 0 && s.Tasks.CompletionRate < t.MinTaskCompletion {
		recs = append(recs, Recommendation{
			Area: AreaTasks,
			Message: fmt.Sprintf("Task completion is %.1f%% (target %.0f%%). Rebalance workload across the team",
				s.Tasks.CompletionRate, t.MinTaskCompletion),
		})
	}
	if s.Tasks.Total > 0 && s.Tasks.OverduePct > t.MaxOverduePct {
		recs = append(recs, Recommendation{
			Area: AreaTasks,
			Message: fmt.Sprintf("%.1f%% of tasks are overdue (limit %.0f%%). Revisit deadlines and assignments",
				s.Tasks.OverduePct, t.MaxOverduePct),
		})
	}

	if s.Clients.NewTotal == 0 {
		recs = append(recs, Recommendation{
			Area:    AreaClients,
			Message: "No new clients in this period. Invest in business development",
		})
	}

	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Area:    AreaOverview,
			Message: "All indicators within targets",
		})
	}
	return recs
}

func summarize(r *Report) string {
	s := r.Sections
	parts := []string{
		fmt.Sprintf("Revenue %.2f over %d months (%.2f per month)", s.Revenue.Total, len(s.Revenue.Monthly), s.Revenue.MonthlyAverage),
	}
	if s.Cases.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d cases opened, %.0f%% closed", s.Cases.Total, s.Cases.ClosureRate))
	}
	if s.Tasks.Total > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%% of %d tasks completed", s.Tasks.CompletionRate, s.Tasks.Total))
	}
	parts = append(parts, fmt.Sprintf("%d new clients", s.Clients.NewTotal))
	if n := countActionable(r.Recommendations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d recommendations", n))
	}
	return strings.Join(parts, ". ") + "."
}

func countActionable(recs []Recommendation) int {
	n := 0
	for _, r := range recs {
		if r.Area != AreaOverview {
			n++
		}
	}
	return n
}
