package records

import (
	"regexp"
	"strings"
	"time"
)

const (
	maxNameLen  = 200
	maxTextLen  = 10000
	maxPhoneLen = 40
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func required(f fieldErrors, field, val string, max int) {
	switch v := strings.TrimSpace(val); {
	case v == "":
		f.add(field, "is required")
	case len(v) > max:
		f.add(field, "is too long")
	}
}

func optionalEmail(f fieldErrors, field, val string) {
	if val != "" && !emailPattern.MatchString(val) {
		f.add(field, "is not a valid email address")
	}
}

func optionalPhone(f fieldErrors, field, val string) {
	if len(val) > maxPhoneLen {
		f.add(field, "is too long")
	}
}

func oneOf[T ~string](f fieldErrors, field string, val T, allowed ...T) {
	for _, a := range allowed {
		if val == a {
			return
		}
	}
	f.add(field, "has an unsupported value")
}

func notBefore(f fieldErrors, field string, later *time.Time, earlier time.Time) {
	if later != nil && !earlier.IsZero() && later.Before(earlier) {
		f.add(field, "must not be before "+earlier.Format(time.DateOnly))
	}
}

func priority(f fieldErrors, p Priority) {
	oneOf(f, "priority", p, PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent)
}

func money(f fieldErrors, amount int64, currency string) {
	if amount < 0 {
		f.add("amount_cents", "must not be negative")
	}
	if !currencyPattern.MatchString(currency) {
		f.add("currency", "must be a three-letter uppercase code")
	}
}

func (c *Client) Validate() error {
	f := fieldErrors{}
	required(f, "name", c.Name, maxNameLen)
	oneOf(f, "kind", c.Type, ClientIndividual, ClientCompany)
	optionalEmail(f, "email", c.Email)
	optionalPhone(f, "phone", c.Phone)
	oneOf(f, "status", c.State, ClientProspect, ClientActive, ClientInactive)
	return f.err()
}

func (c *Contact) Validate() error {
	f := fieldErrors{}
	required(f, "client_id", c.ClientID, maxNameLen)
	required(f, "first_name", c.FirstName, maxNameLen)
	required(f, "last_name", c.LastName, maxNameLen)
	optionalEmail(f, "email", c.Email)
	optionalPhone(f, "phone", c.Phone)
	return f.err()
}

func (c *Case) Validate() error {
	f := fieldErrors{}
	required(f, "client_id", c.ClientID, maxNameLen)
	required(f, "title", c.Title, maxNameLen)
	if len(c.Description) > maxTextLen {
		f.add("description", "is too long")
	}
	oneOf(f, "status", c.State, CaseOpen, CaseInProgress, CaseOnHold, CaseClosed)
	priority(f, c.Priority)
	if c.OpenedAt.IsZero() {
		f.add("opened_at", "is required")
	}
	if c.State == CaseClosed && c.ClosedAt == nil {
		f.add("closed_at", "is required for closed cases")
	}
	notBefore(f, "closed_at", c.ClosedAt, c.OpenedAt)
	return f.err()
}

func (t *Task) Validate() error {
	f := fieldErrors{}
	required(f, "title", t.Title, maxNameLen)
	oneOf(f, "status", t.State, TaskTodo, TaskInProgress, TaskDone, TaskCancelled)
	priority(f, t.Priority)
	if t.State == TaskDone && t.CompletedAt == nil {
		f.add("completed_at", "is required for done tasks")
	}
	return f.err()
}

func (e *Employee) Validate() error {
	f := fieldErrors{}
	required(f, "first_name", e.FirstName, maxNameLen)
	required(f, "last_name", e.LastName, maxNameLen)
	required(f, "email", e.Email, maxNameLen)
	optionalEmail(f, "email", e.Email)
	required(f, "position", e.Position, maxNameLen)
	if e.StartDate.IsZero() {
		f.add("start_date", "is required")
	}
	oneOf(f, "status", e.State, EmployeeOnboarding, EmployeeActive, EmployeeOffboarded)
	seen := map[string]bool{}
	for _, s := range e.OnboardingSteps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			f.add("onboarding_steps", "step names are required")
			continue
		}
		if seen[name] {
			f.add("onboarding_steps", "duplicate step "+name)
		}
		seen[name] = true
	}
	return f.err()
}

func (p *Proposal) Validate() error {
	f := fieldErrors{}
	required(f, "client_id", p.ClientID, maxNameLen)
	required(f, "title", p.Title, maxNameLen)
	money(f, p.AmountCents, p.Currency)
	oneOf(f, "status", p.State, ProposalDraft, ProposalSent, ProposalAccepted, ProposalRejected)
	return f.err()
}

func (i *Invoice) Validate() error {
	f := fieldErrors{}
	required(f, "client_id", i.ClientID, maxNameLen)
	required(f, "number", i.Number, 64)
	money(f, i.AmountCents, i.Currency)
	oneOf(f, "status", i.State, InvoiceDraft, InvoiceIssued, InvoicePaid, InvoiceOverdue, InvoiceVoid)
	if i.State == InvoicePaid && i.PaidAt == nil {
		f.add("paid_at", "is required for paid invoices")
	}
	if i.IssuedAt != nil {
		notBefore(f, "due_at", i.DueAt, *i.IssuedAt)
		notBefore(f, "paid_at", i.PaidAt, *i.IssuedAt)
	}
	return f.err()
}
