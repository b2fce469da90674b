package records

import (
	"fmt"
	"time"
)

// Close marks the case closed at now.
func (c *Case) Close(now time.Time) error {
	if c.State == CaseClosed {
		return fmt.Errorf("%w: case already closed", ErrInvalidTransition)
	}
	c.State = CaseClosed
	c.ClosedAt = timePtr(now)
	return nil
}

// Complete marks the task done at now. Cancelled tasks cannot be completed.
func (t *Task) Complete(now time.Time) error {
	switch t.State {
	case TaskDone:
		return fmt.Errorf("%w: task already done", ErrInvalidTransition)
	case TaskCancelled:
		return fmt.Errorf("%w: task is cancelled", ErrInvalidTransition)
	}
	t.State = TaskDone
	t.CompletedAt = timePtr(now)
	return nil
}

// MarkPaid records payment. Only issued or overdue invoices can be paid.
func (i *Invoice) MarkPaid(now time.Time) error {
	if i.State != InvoiceIssued && i.State != InvoiceOverdue {
		return fmt.Errorf("%w: cannot pay a %s invoice", ErrInvalidTransition, i.State)
	}
	i.State = InvoicePaid
	i.PaidAt = timePtr(now)
	return nil
}

// CompleteStep ticks an onboarding step. The employee becomes active once
// every step is done.
func (e *Employee) CompleteStep(name string) error {
	if e.State == EmployeeOffboarded {
		return fmt.Errorf("%w: employee is offboarded", ErrInvalidTransition)
	}
	found := false
	for i := range e.OnboardingSteps {
		if e.OnboardingSteps[i].Name == name {
			e.OnboardingSteps[i].Done = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: onboarding step %q", ErrNotFound, name)
	}
	if e.OnboardingComplete() {
		e.State = EmployeeActive
	}
	return nil
}

// OnboardingComplete reports whether every onboarding step is done.
func (e *Employee) OnboardingComplete() bool {
	for _, s := range e.OnboardingSteps {
		if !s.Done {
			return false
		}
	}
	return true
}
