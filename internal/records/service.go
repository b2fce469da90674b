package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/access"
	"github.com/fyrsmithlabs/firmd/internal/events"
	"github.com/fyrsmithlabs/firmd/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fyrsmithlabs/firmd/internal/records"

// Invalidator drops cached analytics for an org after a write.
type Invalidator interface {
	Invalidate(orgID string) int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the change-event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithInvalidator sets the analytics cache invalidator.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service validates, authorizes and persists records, then announces the
// change and drops stale analytics.
type Service struct {
	store       Store
	publisher   events.Publisher
	invalidator Invalidator
	logger      *logging.Logger
	tracer      trace.Tracer
	now         func() time.Time
	readPerm    map[Kind]access.Permission

	Clients   *Collection[*Client]
	Contacts  *Collection[*Contact]
	Cases     *Collection[*Case]
	Tasks     *Collection[*Task]
	Employees *Collection[*Employee]
	Proposals *Collection[*Proposal]
	Invoices  *Collection[*Invoice]
}

// NewService creates a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: events.NopPublisher{},
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		readPerm:  make(map[Kind]access.Permission, len(Kinds)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Clients = newCollection(s, store.Clients(), KindClient, access.ClientsRead, access.ClientsWrite)
	s.Contacts = newCollection(s, store.Contacts(), KindContact, access.ClientsRead, access.ClientsWrite)
	s.Cases = newCollection(s, store.Cases(), KindCase, access.CasesRead, access.CasesWrite)
	s.Tasks = newCollection(s, store.Tasks(), KindTask, access.TasksRead, access.TasksWrite)
	s.Employees = newCollection(s, store.Employees(), KindEmployee, access.HRRead, access.HRWrite)
	s.Proposals = newCollection(s, store.Proposals(), KindProposal, access.BillingRead, access.BillingWrite)
	s.Invoices = newCollection(s, store.Invoices(), KindInvoice, access.BillingRead, access.BillingWrite)
	return s
}

// CanRead reports whether p may read records of kind. Unknown kinds are
// never readable.
func (s *Service) CanRead(p access.Principal, kind Kind) bool {
	perm, ok := s.readPerm[kind]
	return ok && p.Can(perm)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// changed publishes the change and invalidates analytics. Neither failure
// undoes the committed write.
func (s *Service) changed(ctx context.Context, kind Kind, action events.Action, m *Meta) {
	ev := events.New(m.OrgID, string(kind), action, m.ID, s.clock())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn(ctx, "publishing record event failed",
			zap.String("kind", string(kind)),
			zap.String("record.id", m.ID),
			zap.Error(err))
	}
	if s.invalidator != nil {
		n := s.invalidator.Invalidate(m.OrgID)
		s.logger.Debug(ctx, "analytics invalidated", zap.Int("entries", n))
	}
	s.logger.Info(ctx, "record "+string(action),
		zap.String("kind", string(kind)),
		zap.String("record.id", m.ID))
}

// CloseCase closes a case.
func (s *Service) CloseCase(ctx context.Context, p access.Principal, id string) (*Case, error) {
	return s.Cases.mutate(ctx, p, id, func(c *Case, now time.Time) error { return c.Close(now) })
}

// CompleteTask marks a task done.
func (s *Service) CompleteTask(ctx context.Context, p access.Principal, id string) (*Task, error) {
	return s.Tasks.mutate(ctx, p, id, func(t *Task, now time.Time) error { return t.Complete(now) })
}

// PayInvoice marks an invoice paid.
func (s *Service) PayInvoice(ctx context.Context, p access.Principal, id string) (*Invoice, error) {
	return s.Invoices.mutate(ctx, p, id, func(i *Invoice, now time.Time) error { return i.MarkPaid(now) })
}

// CompleteOnboardingStep ticks one onboarding step of an employee.
func (s *Service) CompleteOnboardingStep(ctx context.Context, p access.Principal, id, step string) (*Employee, error) {
	return s.Employees.mutate(ctx, p, id, func(e *Employee, _ time.Time) error { return e.CompleteStep(step) })
}

// Collection exposes tenant-scoped operations on one record kind.
type Collection[T Record] struct {
	svc   *Service
	repo  Repository[T]
	kind  Kind
	read  access.Permission
	write access.Permission
}

func newCollection[T Record](s *Service, repo Repository[T], kind Kind, read, write access.Permission) *Collection[T] {
	s.readPerm[kind] = read
	return &Collection[T]{svc: s, repo: repo, kind: kind, read: read, write: write}
}

// Kind returns the record kind held by the collection.
func (c *Collection[T]) Kind() Kind { return c.kind }

func (c *Collection[T]) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return c.svc.tracer.Start(ctx, "records."+op, trace.WithAttributes(
		attribute.String("record.kind", string(c.kind)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create stamps identity and timestamps on rec, validates and stores it.
func (c *Collection[T]) Create(ctx context.Context, p access.Principal, rec T) (_ T, err error) {
	ctx, span := c.start(ctx, "create")
	defer func() { endSpan(span, err) }()

	var zero T
	if err := access.Check(p, c.write); err != nil {
		return zero, err
	}

	now := c.svc.clock()
	m := rec.Base()
	m.ID = uuid.NewString()
	m.OrgID = p.OrgID
	m.CreatedAt = now
	m.UpdatedAt = now
	rec.ApplyDefaults(now)

	if err := c.svc.check(ctx, p.OrgID, rec); err != nil {
		return zero, err
	}
	if err := c.repo.Create(ctx, rec); err != nil {
		return zero, fmt.Errorf("creating %s: %w", c.kind, err)
	}
	c.svc.changed(ctx, c.kind, events.Created, m)
	return rec, nil
}

// Get loads one record.
func (c *Collection[T]) Get(ctx context.Context, p access.Principal, id string) (_ T, err error) {
	ctx, span := c.start(ctx, "get")
	defer func() { endSpan(span, err) }()

	var zero T
	if err := access.Check(p, c.read); err != nil {
		return zero, err
	}
	return c.repo.Get(ctx, p.OrgID, id)
}

// List pages through records of the org.
func (c *Collection[T]) List(ctx context.Context, p access.Principal, opts ListOptions) (_ []T, err error) {
	ctx, span := c.start(ctx, "list")
	defer func() { endSpan(span, err) }()

	if err := access.Check(p, c.read); err != nil {
		return nil, err
	}
	return c.repo.List(ctx, p.OrgID, opts.Normalize())
}

// Update replaces record id with rec. Identity and creation time are kept
// from the stored record; a non-zero rec.UpdatedAt must match the stored one.
func (c *Collection[T]) Update(ctx context.Context, p access.Principal, id string, rec T) (_ T, err error) {
	ctx, span := c.start(ctx, "update")
	defer func() { endSpan(span, err) }()

	var zero T
	if err := access.Check(p, c.write); err != nil {
		return zero, err
	}
	current, err := c.repo.Get(ctx, p.OrgID, id)
	if err != nil {
		return zero, err
	}

	m := rec.Base()
	m.ID = id
	m.OrgID = p.OrgID
	m.CreatedAt = current.Base().CreatedAt
	rec.ApplyDefaults(c.svc.clock())

	if err := c.svc.check(ctx, p.OrgID, rec); err != nil {
		return zero, err
	}
	if err := c.repo.Update(ctx, rec); err != nil {
		return zero, fmt.Errorf("updating %s: %w", c.kind, err)
	}
	c.svc.changed(ctx, c.kind, events.Updated, m)
	return rec, nil
}

// Delete removes record id.
func (c *Collection[T]) Delete(ctx context.Context, p access.Principal, id string) (err error) {
	ctx, span := c.start(ctx, "delete")
	defer func() { endSpan(span, err) }()

	if err := access.Check(p, c.write); err != nil {
		return err
	}
	if err := c.repo.Delete(ctx, p.OrgID, id); err != nil {
		return err
	}
	c.svc.changed(ctx, c.kind, events.Deleted, &Meta{ID: id, OrgID: p.OrgID})
	return nil
}

// mutate applies a status transition to a stored record.
func (c *Collection[T]) mutate(ctx context.Context, p access.Principal, id string, fn func(T, time.Time) error) (_ T, err error) {
	ctx, span := c.start(ctx, "transition")
	defer func() { endSpan(span, err) }()

	var zero T
	if err := access.Check(p, c.write); err != nil {
		return zero, err
	}
	rec, err := c.repo.Get(ctx, p.OrgID, id)
	if err != nil {
		return zero, err
	}
	if err := fn(rec, c.svc.clock()); err != nil {
		return zero, err
	}
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	if err := c.repo.Update(ctx, rec); err != nil {
		return zero, fmt.Errorf("updating %s: %w", c.kind, err)
	}
	c.svc.changed(ctx, c.kind, events.Updated, rec.Base())
	return rec, nil
}

// reference points from a record field to another record.
type reference struct {
	field string
	kind  Kind
	id    string
}

func (c *Contact) references() []reference {
	return []reference{{"client_id", KindClient, c.ClientID}}
}

func (c *Case) references() []reference {
	return []reference{{"client_id", KindClient, c.ClientID}}
}

func (t *Task) references() []reference {
	return []reference{{"case_id", KindCase, t.CaseID}}
}

func (p *Proposal) references() []reference {
	return []reference{{"client_id", KindClient, p.ClientID}}
}

func (i *Invoice) references() []reference {
	return []reference{
		{"client_id", KindClient, i.ClientID},
		{"proposal_id", KindProposal, i.ProposalID},
	}
}

// check validates rec and verifies that every referenced record exists in
// the same org.
func (s *Service) check(ctx context.Context, orgID string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	r, ok := rec.(interface{ references() []reference })
	if !ok {
		return nil
	}
	missing := fieldErrors{}
	for _, ref := range r.references() {
		if ref.id == "" {
			continue
		}
		exists, err := s.store.Exists(ctx, orgID, ref.kind, ref.id)
		if err != nil {
			return fmt.Errorf("checking %s: %w", ref.field, err)
		}
		if !exists {
			missing.add(ref.field, "does not exist")
		}
	}
	return missing.err()
}

// IsValidation reports whether err carries per-field validation detail.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
