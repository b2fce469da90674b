// Package records holds the firm's domain records, their validation rules
// and the tenant-scoped service that stores them.
package records

import (
	"strings"
	"time"
)

// Kind names a record family.
type Kind string

const (
	KindClient   Kind = "client"
	KindContact  Kind = "contact"
	KindCase     Kind = "case"
	KindTask     Kind = "task"
	KindEmployee Kind = "employee"
	KindProposal Kind = "proposal"
	KindInvoice  Kind = "invoice"
)

// Kinds lists every record kind.
var Kinds = []Kind{KindClient, KindContact, KindCase, KindTask, KindEmployee, KindProposal, KindInvoice}

// Meta is shared by every record.
type Meta struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Base returns the record's metadata.
func (m *Meta) Base() *Meta { return m }

// Record is implemented by every domain record.
type Record interface {
	Base() *Meta
	Kind() Kind
	Validate() error
	// Status is the record's current lifecycle state, used for list filters.
	Status() string
	// SearchText is the lower-cased text matched by list searches.
	SearchText() string
	// ApplyDefaults fills unset optional fields.
	ApplyDefaults(now time.Time)
}

// Priority is shared by cases and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ClientKind distinguishes people from companies.
type ClientKind string

const (
	ClientIndividual ClientKind = "individual"
	ClientCompany    ClientKind = "company"
)

// ClientStatus is the lifecycle of a client.
type ClientStatus string

const (
	ClientProspect ClientStatus = "prospect"
	ClientActive   ClientStatus = "active"
	ClientInactive ClientStatus = "inactive"
)

// Client is a person or company the firm works for.
type Client struct {
	Meta
	Name    string       `json:"name"`
	Type    ClientKind   `json:"kind"`
	Email   string       `json:"email,omitempty"`
	Phone   string       `json:"phone,omitempty"`
	TaxID   string       `json:"tax_id,omitempty"`
	State   ClientStatus `json:"status"`
	OwnerID string       `json:"owner_id,omitempty"`
}

func (*Client) Kind() Kind { return KindClient }
func (c *Client) Status() string { return string(c.State) }
func (c *Client) SearchText() string { return joinLower(c.Name, c.Email, c.Phone) }

func (c *Client) ApplyDefaults(time.Time) {
	if c.State == "" {
		c.State = ClientProspect
	}
}

// Contact is a person attached to a client.
type Contact struct {
	Meta
	ClientID  string `json:"client_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
	Primary   bool   `json:"primary"`
}

func (*Contact) Kind() Kind { return KindContact }
func (*Contact) Status() string { return "" }
func (c *Contact) SearchText() string { return joinLower(c.FirstName, c.LastName, c.Email, c.Role) }
func (*Contact) ApplyDefaults(time.Time) {}

// CaseStatus is the lifecycle of a case.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseOnHold     CaseStatus = "on_hold"
	CaseClosed     CaseStatus = "closed"
)

// Case is a matter handled for a client.
type Case struct {
	Meta
	ClientID    string     `json:"client_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       CaseStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

func (*Case) Kind() Kind { return KindCase }
func (c *Case) Status() string { return string(c.State) }
func (c *Case) SearchText() string { return joinLower(c.Title, c.Description) }

func (c *Case) ApplyDefaults(now time.Time) {
	if c.State == "" {
		c.State = CaseOpen
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if c.OpenedAt.IsZero() {
		c.OpenedAt = now
	}
	if c.State == CaseClosed && c.ClosedAt == nil {
		c.ClosedAt = timePtr(now)
	}
}

// TaskStatus is the lifecycle of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Task is a unit of work, optionally attached to a case.
type Task struct {
	Meta
	CaseID      string     `json:"case_id,omitempty"`
	Title       string     `json:"title"`
	State       TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (*Task) Kind() Kind { return KindTask }
func (t *Task) Status() string { return string(t.State) }
func (t *Task) SearchText() string { return joinLower(t.Title) }

func (t *Task) ApplyDefaults(now time.Time) {
	if t.State == "" {
		t.State = TaskTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.State == TaskDone && t.CompletedAt == nil {
		t.CompletedAt = timePtr(now)
	}
}

// Overdue reports whether the task is still open past its due date.
func (t *Task) Overdue(now time.Time) bool {
	if t.DueDate == nil || t.State == TaskDone || t.State == TaskCancelled {
		return false
	}
	return t.DueDate.Before(now)
}

// EmployeeStatus is the lifecycle of an employee.
type EmployeeStatus string

const (
	EmployeeOnboarding EmployeeStatus = "onboarding"
	EmployeeActive     EmployeeStatus = "active"
	EmployeeOffboarded EmployeeStatus = "offboarded"
)

// OnboardingStep is one checklist item for a new hire.
type OnboardingStep struct {
	Name string `json:"name"`
	Done bool   `json:"done"`
}

// DefaultOnboardingSteps is the checklist given to new hires without one.
var DefaultOnboardingSteps = []string{
	"contract signed",
	"accounts created",
	"equipment issued",
	"orientation completed",
}

// Employee is a member of the firm's staff.
type Employee struct {
	Meta
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	Email           string           `json:"email"`
	Position        string           `json:"position"`
	Department      string           `json:"department,omitempty"`
	StartDate       time.Time        `json:"start_date"`
	State           EmployeeStatus   `json:"status"`
	OnboardingSteps []OnboardingStep `json:"onboarding_steps"`
}

func (*Employee) Kind() Kind { return KindEmployee }
func (e *Employee) Status() string { return string(e.State) }
func (e *Employee) SearchText() string {
	return joinLower(e.FirstName, e.LastName, e.Email, e.Position, e.Department)
}

func (e *Employee) ApplyDefaults(time.Time) {
	if e.State == "" {
		e.State = EmployeeOnboarding
	}
	if e.State == EmployeeOnboarding && len(e.OnboardingSteps) == 0 {
		for _, name := range DefaultOnboardingSteps {
			e.OnboardingSteps = append(e.OnboardingSteps, OnboardingStep{Name: name})
		}
	}
}

// ProposalStatus is the lifecycle of a fee proposal.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalSent     ProposalStatus = "sent"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// DefaultCurrency is used when a billing record names none.
const DefaultCurrency = "EUR"

// Proposal is a priced offer made to a client.
type Proposal struct {
	Meta
	ClientID    string         `json:"client_id"`
	Title       string         `json:"title"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	State       ProposalStatus `json:"status"`
	ValidUntil  *time.Time     `json:"valid_until"`
}

func (*Proposal) Kind() Kind { return KindProposal }
func (p *Proposal) Status() string { return string(p.State) }
func (p *Proposal) SearchText() string { return joinLower(p.Title) }

func (p *Proposal) ApplyDefaults(time.Time) {
	if p.State == "" {
		p.State = ProposalDraft
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
}

// InvoiceStatus is the lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceIssued  InvoiceStatus = "issued"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

// Invoice bills a client. Paid invoices feed revenue analytics.
type Invoice struct {
	Meta
	ClientID    string        `json:"client_id"`
	ProposalID  string        `json:"proposal_id,omitempty"`
	Number      string        `json:"number"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	State       InvoiceStatus `json:"status"`
	IssuedAt    *time.Time    `json:"issued_at"`
	DueAt       *time.Time    `json:"due_at"`
	PaidAt      *time.Time    `json:"paid_at"`
}

func (*Invoice) Kind() Kind { return KindInvoice }
func (i *Invoice) Status() string { return string(i.State) }
func (i *Invoice) SearchText() string { return joinLower(i.Number) }

func (i *Invoice) ApplyDefaults(now time.Time) {
	if i.State == "" {
		i.State = InvoiceDraft
	}
	if i.Currency == "" {
		i.Currency = DefaultCurrency
	}
	if i.State != InvoiceDraft && i.State != InvoiceVoid && i.IssuedAt == nil {
		i.IssuedAt = timePtr(now)
	}
	if i.State == InvoicePaid && i.PaidAt == nil {
		i.PaidAt = timePtr(now)
	}
}

// New returns an empty record of the given kind.
func New(k Kind) (Record, bool) {
	switch k {
	case KindClient:
		return &Client{}, true
	case KindContact:
		return &Contact{}, true
	case KindCase:
		return &Case{}, true
	case KindTask:
		return &Task{}, true
	case KindEmployee:
		return &Employee{}, true
	case KindProposal:
		return &Proposal{}, true
	case KindInvoice:
		return &Invoice{}, true
	}
	return nil, false
}

func joinLower(parts ...string) string {
	return strings.ToLower(strings.Join(parts, " "))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
