// Package store persists firm records in SQLite.
//
// Every record lives in one table keyed by (org_id, kind, id). The full
// record is kept as JSON; status, search text and timestamps are promoted
// to columns for filtering, and aggregate queries read the JSON fields with
// SQLite's json_extract and date functions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/records"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	org_id     TEXT NOT NULL,
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	search     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (org_id, kind, id)
);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(org_id, kind, status);
CREATE INDEX IF NOT EXISTS idx_records_created ON records(org_id, kind, created_at);
`

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for UpdatedAt refreshes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics enables Prometheus query metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is the SQLite implementation of records.Store.
type Store struct {
	db      *sql.DB
	path    string
	now     func() time.Time
	metrics *Metrics
}

var _ records.Store = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" keeps everything
// in a single in-memory connection.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Clients() records.Repository[*records.Client] {
	return newRepo(s, records.KindClient, func() *records.Client { return &records.Client{} })
}

func (s *Store) Contacts() records.Repository[*records.Contact] {
	return newRepo(s, records.KindContact, func() *records.Contact { return &records.Contact{} })
}

func (s *Store) Cases() records.Repository[*records.Case] {
	return newRepo(s, records.KindCase, func() *records.Case { return &records.Case{} })
}

func (s *Store) Tasks() records.Repository[*records.Task] {
	return newRepo(s, records.KindTask, func() *records.Task { return &records.Task{} })
}

func (s *Store) Employees() records.Repository[*records.Employee] {
	return newRepo(s, records.KindEmployee, func() *records.Employee { return &records.Employee{} })
}

func (s *Store) Proposals() records.Repository[*records.Proposal] {
	return newRepo(s, records.KindProposal, func() *records.Proposal { return &records.Proposal{} })
}

func (s *Store) Invoices() records.Repository[*records.Invoice] {
	return newRepo(s, records.KindInvoice, func() *records.Invoice { return &records.Invoice{} })
}

// Exists reports whether a record exists in the org.
func (s *Store) Exists(ctx context.Context, orgID string, kind records.Kind, id string) (ok bool, err error) {
	defer s.metrics.observe("exists", time.Now(), &err)
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE org_id = ? AND kind = ? AND id = ?)`,
		orgID, string(kind), id).Scan(&ok)
	return ok, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(kind records.Kind, id string) error {
	return fmt.Errorf("%w: %s %s", records.ErrNotFound, kind, id)
}

// rollback is deferred after BeginTx; it is a no-op once committed.
func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
