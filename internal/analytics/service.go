// Package analytics computes tenant dashboards from record aggregates and
// caches each result in a TTL map.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/fyrsmithlabs/firmd/internal/records"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fyrsmithlabs/firmd/internal/analytics"

// DefaultForecastPeriods is how many months the dashboard projects.
const DefaultForecastPeriods = 3

// MonthlyValue is a per-month amount in major currency units.
type MonthlyValue struct {
	Month string  `json:"month"`
	Value float64 `json:"value"`
}

// CaseMetrics summarizes cases opened within a range.
type CaseMetrics struct {
	ByStatus          map[string]int `json:"by_status"`
	Total             int            `json:"total"`
	Open              int            `json:"open"`
	Closed            int            `json:"closed"`
	AvgResolutionDays float64        `json:"avg_resolution_days"`
	// ClosureRate is the closed share of Total, 0-100.
	ClosureRate float64 `json:"closure_rate"`
}

// TaskMetrics summarizes tasks created within a range.
type TaskMetrics struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Overdue   int `json:"overdue"`
	// CompletionRate and OverdueRate are shares of Total, 0-100.
	CompletionRate float64 `json:"completion_rate"`
	OverdueRate    float64 `json:"overdue_rate"`
}

// GrowthPoint is one month of client growth.
type GrowthPoint struct {
	Month      string `json:"month"`
	New        int    `json:"new"`
	Cumulative int    `json:"cumulative"`
}

// ClientGrowth is new clients per month with a running total.
type ClientGrowth struct {
	Months   []GrowthPoint `json:"months"`
	NewTotal int           `json:"new_total"`
	Starting int           `json:"starting"`
}

// Dashboard bundles every metric for one range.
type Dashboard struct {
	Range           Range          `json:"range"`
	Revenue         []MonthlyValue `json:"revenue"`
	RevenueForecast ForecastResult `json:"revenue_forecast"`
	Cases           CaseMetrics    `json:"cases"`
	Tasks           TaskMetrics    `json:"tasks"`
	Clients         ClientGrowth   `json:"clients"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithForecastPeriods sets how many months Dashboard projects.
func WithForecastPeriods(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.forecastPeriods = n
		}
	}
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// Service runs the aggregate queries one after another and caches each
// result per org and range.
type Service struct {
	store           records.Aggregates
	cache           *Cache
	forecastPeriods int
	now             func() time.Time
	logger          *logging.Logger
	tracer          trace.Tracer
}

// NewService creates a Service. A nil cache disables caching.
func NewService(store records.Aggregates, cache *Cache, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		cache:           cache,
		forecastPeriods: DefaultForecastPeriods,
		now:             time.Now,
		logger:          logging.NewNop(),
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops every cached result of org.
func (s *Service) Invalidate(org string) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Invalidate(OrgPattern(org))
}

// cached returns the cached value for key or loads and stores it. A result
// whose org was invalidated during the load is returned but not stored.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				s.logger.Trace(ctx, "analytics cache hit", zap.String("key", key))
				return typed, nil
			}
		}
	}
	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation()
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if s.cache != nil && !s.cache.SetIfUnchanged(key, v, 0, gen) {
		s.logger.Debug(ctx, "analytics result invalidated while loading, not cached", zap.String("key", key))
	}
	return v, nil
}

func (s *Service) span(ctx context.Context, name, org string, r Range) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "analytics."+name, trace.WithAttributes(
		attribute.String("tenant.org", org),
		attribute.String("range", r.String()),
	))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RevenueTrend returns paid revenue per month, zero-filled.
func (s *Service) RevenueTrend(ctx context.Context, org string, r Range) (_ []MonthlyValue, err error) {
	if r, err = r.Resolve(s.now()); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "revenue", org, r)
	defer func() { finish(span, err) }()

	return cached(ctx, s, Key(org, "revenue", r.Span().From, r.Span().To), func(ctx context.Context) ([]MonthlyValue, error) {
		rows, err := s.store.MonthlyRevenue(ctx, org, r.Span())
		if err != nil {
			return nil, fmt.Errorf("monthly revenue: %w", err)
		}
		byMonth := make(map[string]int64, len(rows))
		for _, row := range rows {
			byMonth[row.Month] = row.Cents
		}
		months := r.Months()
		out := make([]MonthlyValue, len(months))
		for i, m := range months {
			out[i] = MonthlyValue{Month: m, Value: float64(byMonth[m]) / 100}
		}
		return out, nil
	})
}

// CaseMetrics returns case counts, closure rate and resolution time.
func (s *Service) CaseMetrics(ctx context.Context, org string, r Range) (_ CaseMetrics, err error) {
	if r, err = r.Resolve(s.now()); err != nil {
		return CaseMetrics{}, err
	}
	ctx, span := s.span(ctx, "cases", org, r)
	defer func() { finish(span, err) }()

	return cached(ctx, s, Key(org, "cases", r.Span().From, r.Span().To), func(ctx context.Context) (CaseMetrics, error) {
		counts, err := s.store.CaseStatusCounts(ctx, org, r.Span())
		if err != nil {
			return CaseMetrics{}, fmt.Errorf("case status counts: %w", err)
		}
		days, err := s.store.CaseResolutionDays(ctx, org, r.Span())
		if err != nil {
			return CaseMetrics{}, fmt.Errorf("case resolution: %w", err)
		}

		m := CaseMetrics{ByStatus: counts}
		for _, n := range counts {
			m.Total += n
		}
		m.Closed = counts[string(records.CaseClosed)]
		m.Open = m.Total - m.Closed
		m.ClosureRate = percent(m.Closed, m.Total)
		m.AvgResolutionDays = mean(days)
		return m, nil
	})
}

// TaskMetrics returns task totals with completion and overdue rates.
func (s *Service) TaskMetrics(ctx context.Context, org string, r Range) (_ TaskMetrics, err error) {
	now := s.now()
	if r, err = r.Resolve(now); err != nil {
		return TaskMetrics{}, err
	}
	ctx, span := s.span(ctx, "tasks", org, r)
	defer func() { finish(span, err) }()

	return cached(ctx, s, Key(org, "tasks", r.Span().From, r.Span().To), func(ctx context.Context) (TaskMetrics, error) {
		tc, err := s.store.TaskCounts(ctx, org, r.Span(), now)
		if err != nil {
			return TaskMetrics{}, fmt.Errorf("task counts: %w", err)
		}
		return TaskMetrics{
			Total:          tc.Total,
			Completed:      tc.Completed,
			Cancelled:      tc.Cancelled,
			Overdue:        tc.Overdue,
			CompletionRate: percent(tc.Completed, tc.Total),
			OverdueRate:    percent(tc.Overdue, tc.Total),
		}, nil
	})
}

// ClientGrowth returns new clients per month, zero-filled, with a
// cumulative total that starts from the clients created before the range.
func (s *Service) ClientGrowth(ctx context.Context, org string, r Range) (_ ClientGrowth, err error) {
	if r, err = r.Resolve(s.now()); err != nil {
		return ClientGrowth{}, err
	}
	ctx, span := s.span(ctx, "clients", org, r)
	defer func() { finish(span, err) }()

	return cached(ctx, s, Key(org, "clients", r.Span().From, r.Span().To), func(ctx context.Context) (ClientGrowth, error) {
		rows, err := s.store.MonthlyNewClients(ctx, org, r.Span())
		if err != nil {
			return ClientGrowth{}, fmt.Errorf("monthly new clients: %w", err)
		}
		starting, err := s.store.ClientsBefore(ctx, org, r.Span().From)
		if err != nil {
			return ClientGrowth{}, fmt.Errorf("clients before range: %w", err)
		}

		byMonth := make(map[string]int, len(rows))
		for _, row := range rows {
			byMonth[row.Month] = row.Count
		}
		g := ClientGrowth{Starting: starting}
		total := starting
		for _, m := range r.Months() {
			total += byMonth[m]
			g.NewTotal += byMonth[m]
			g.Months = append(g.Months, GrowthPoint{Month: m, New: byMonth[m], Cumulative: total})
		}
		return g, nil
	})
}

// Dashboard gathers every metric for the range plus a revenue forecast.
func (s *Service) Dashboard(ctx context.Context, org string, r Range) (_ *Dashboard, err error) {
	if r, err = r.Resolve(s.now()); err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "dashboard", org, r)
	defer func() { finish(span, err) }()

	d := &Dashboard{Range: r, GeneratedAt: s.now().UTC()}
	if d.Revenue, err = s.RevenueTrend(ctx, org, r); err != nil {
		return nil, err
	}
	if d.Cases, err = s.CaseMetrics(ctx, org, r); err != nil {
		return nil, err
	}
	if d.Tasks, err = s.TaskMetrics(ctx, org, r); err != nil {
		return nil, err
	}
	if d.Clients, err = s.ClientGrowth(ctx, org, r); err != nil {
		return nil, err
	}

	series := make([]float64, len(d.Revenue))
	for i, v := range d.Revenue {
		series[i] = v.Value
	}
	d.RevenueForecast = Forecast(series, s.forecastPeriods)

	s.logger.Debug(ctx, "dashboard computed",
		zap.String("range", r.String()),
		zap.String("revenue_trend", string(d.RevenueForecast.Trend)))
	return d, nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
