package report

import (
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	"github.com/fyrsmithlabs/firmd/internal/config"
)

// Format selects a report renderer.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	// FormatConsole is text styled for a terminal.
	FormatConsole Format = "console"
)

// Area names the part of the business a recommendation is about.
type Area string

const (
	AreaRevenue  Area = "revenue"
	AreaCases    Area = "cases"
	AreaTasks    Area = "tasks"
	AreaClients  Area = "clients"
	AreaOverview Area = "overview"
)

// Options control a single Generate call.
type Options struct {
	// Range defaults to the last twelve months.
	Range analytics.Range
	// Format is recorded on the report; rendering is up to the caller.
	Format Format
}

// Thresholds drive the recommendations. Percentages are 0-100.
type Thresholds struct {
	// RevenueDeclinePct is the month-over-month change (negative) below
	// which revenue counts as declining.
	RevenueDeclinePct float64 `json:"revenue_decline_pct"`
	MinClosureRate    float64 `json:"min_closure_rate"`
	MaxResolutionDays float64 `json:"max_resolution_days"`
	MinTaskCompletion float64 `json:"min_task_completion"`
	MaxOverduePct     float64 `json:"max_overdue_pct"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RevenueDeclinePct: -10,
		MinClosureRate:    50,
		MaxResolutionDays: 30,
		MinTaskCompletion: 70,
		MaxOverduePct:     15,
	}
}

// ThresholdsFromConfig copies thresholds from configuration, falling back
// to the defaults for unset values.
func ThresholdsFromConfig(cfg config.ReportConfig) Thresholds {
	t := DefaultThresholds()
	if cfg.RevenueDeclinePct != 0 {
		t.RevenueDeclinePct = cfg.RevenueDeclinePct
	}
	if cfg.MinClosureRate != 0 {
		t.MinClosureRate = cfg.MinClosureRate
	}
	if cfg.MaxResolutionDays != 0 {
		t.MaxResolutionDays = cfg.MaxResolutionDays
	}
	if cfg.MinTaskCompletion != 0 {
		t.MinTaskCompletion = cfg.MinTaskCompletion
	}
	if cfg.MaxOverduePct != 0 {
		t.MaxOverduePct = cfg.MaxOverduePct
	}
	return t
}

// RevenueSection summarizes paid revenue.
type RevenueSection struct {
	Total          float64 `json:"total"`
	MonthlyAverage float64 `json:"monthly_average"`
	BestMonth      string  `json:"best_month,omitempty"`
	BestMonthValue float64 `json:"best_month_value"`
	// ChangePct compares ChangeMonth, the last complete month of the
	// range, with the month before. Both are zero without two such months.
	ChangePct   float64                  `json:"change_pct"`
	ChangeMonth string                   `json:"change_month,omitempty"`
	Monthly     []analytics.MonthlyValue `json:"monthly"`
}

// CaseSection summarizes cases opened in the range.
type CaseSection struct {
	Total             int            `json:"total"`
	Open              int            `json:"open"`
	Closed            int            `json:"closed"`
	ClosureRate       float64        `json:"closure_rate"`
	AvgResolutionDays float64        `json:"avg_resolution_days"`
	ByStatus          map[string]int `json:"by_status"`
}

// TaskSection summarizes tasks created in the range.
type TaskSection struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Overdue        int     `json:"overdue"`
	CompletionRate float64 `json:"completion_rate"`
	OverduePct     float64 `json:"overdue_pct"`
}

// ClientSection summarizes client acquisition.
type ClientSection struct {
	NewTotal       int     `json:"new_total"`
	MonthlyAverage float64 `json:"monthly_average"`
	// GrowthPct is new clients relative to the count at the start of the range.
	GrowthPct float64 `json:"growth_pct"`
	Starting  int     `json:"starting"`
	Ending    int     `json:"ending"`
}

// Sections groups the four report sections.
type Sections struct {
	Revenue RevenueSection `json:"revenue"`
	Cases   CaseSection    `json:"cases"`
	Tasks   TaskSection    `json:"tasks"`
	Clients ClientSection  `json:"clients"`
}

// Recommendation is one actionable finding.
type Recommendation struct {
	Area    Area   `json:"area"`
	Message string `json:"message"`
}

// Report is a generated business report.
type Report struct {
	ID              string           `json:"id"`
	OrgID           string           `json:"org_id"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Range           analytics.Range  `json:"range"`
	Format          Format           `json:"format,omitempty"`
	Sections        Sections         `json:"sections"`
	Thresholds      Thresholds       `json:"thresholds"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
}
