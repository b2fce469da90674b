package records

import (
	"context"
	"time"
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListOptions filters and pages a List call.
type ListOptions struct {
	Limit    int
	Offset   int
	Status   string
	Search   string
	ClientID string
}

// Normalize clamps the page size and offset.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Repository stores records of one kind. Every call is scoped to an org;
// ids belonging to another org behave as if they did not exist.
type Repository[T Record] interface {
	Create(ctx context.Context, rec T) error
	Get(ctx context.Context, orgID, id string) (T, error)
	// Update replaces the stored record. A non-zero UpdatedAt on rec must
	// match the stored value; on success it is refreshed.
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, orgID, id string) error
	List(ctx context.Context, orgID string, opts ListOptions) ([]T, error)
}

// MonthlyAmount is a per-month total in minor units.
type MonthlyAmount struct {
	Month string `json:"month"`
	Cents int64  `json:"cents"`
}

// MonthlyCount is a per-month count.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// TaskCounts summarizes tasks created within a range.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Overdue   int `json:"overdue"`
}

// MonthSpan is an inclusive range of "YYYY-MM" months.
type MonthSpan struct {
	From string
	To   string
}

// Aggregates are the grouped queries analytics runs against the store.
type Aggregates interface {
	// MonthlyRevenue sums paid invoices by payment month.
	MonthlyRevenue(ctx context.Context, orgID string, span MonthSpan) ([]MonthlyAmount, error)
	// CaseStatusCounts counts cases opened within span by status.
	CaseStatusCounts(ctx context.Context, orgID string, span MonthSpan) (map[string]int, error)
	// CaseResolutionDays lists open-to-close durations of cases closed within span.
	CaseResolutionDays(ctx context.Context, orgID string, span MonthSpan) ([]float64, error)
	// TaskCounts counts tasks created within span; overdue is judged at now.
	TaskCounts(ctx context.Context, orgID string, span MonthSpan, now time.Time) (TaskCounts, error)
	// MonthlyNewClients counts clients by creation month.
	MonthlyNewClients(ctx context.Context, orgID string, span MonthSpan) ([]MonthlyCount, error)
	// ClientsBefore counts clients created before the given month.
	ClientsBefore(ctx context.Context, orgID, month string) (int, error)
}

// Store is the persistence boundary for every record kind.
type Store interface {
	Clients() Repository[*Client]
	Contacts() Repository[*Contact]
	Cases() Repository[*Case]
	Tasks() Repository[*Task]
	Employees() Repository[*Employee]
	Proposals() Repository[*Proposal]
	Invoices() Repository[*Invoice]

	// Exists reports whether a record of kind with id exists in the org.
	Exists(ctx context.Context, orgID string, kind Kind, id string) (bool, error)

	Aggregates
	Ping(ctx context.Context) error
	Close() error
}
