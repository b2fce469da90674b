package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/records"
)

// repo implements records.Repository for one kind.
type repo[T records.Record] struct {
	s    *Store
	kind records.Kind
	newT func() T
}

func newRepo[T records.Record](s *Store, kind records.Kind, newT func() T) *repo[T] {
	return &repo[T]{s: s, kind: kind, newT: newT}
}

func (r *repo[T]) Create(ctx context.Context, rec T) (err error) {
	defer r.s.metrics.observe("create", time.Now(), &err)

	m := rec.Base()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.kind, err)
	}

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := r.checkUnique(ctx, tx, rec); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (org_id, kind, id, status, search, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OrgID, string(r.kind), m.ID, rec.Status(), rec.SearchText(), string(data),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s already exists", records.ErrConflict, r.kind, m.ID)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repo[T]) Get(ctx context.Context, orgID, id string) (_ T, err error) {
	defer r.s.metrics.observe("get", time.Now(), &err)

	var zero T
	var data string
	err = r.s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE org_id = ? AND kind = ? AND id = ?`,
		orgID, string(r.kind), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, notFound(r.kind, id)
	}
	if err != nil {
		return zero, err
	}
	return r.decode(data)
}

func (r *repo[T]) Update(ctx context.Context, rec T) (err error) {
	defer r.s.metrics.observe("update", time.Now(), &err)

	m := rec.Base()
	expected := m.UpdatedAt
	next := r.s.now().UTC()
	if !next.After(expected) {
		next = expected.Add(time.Microsecond)
	}
	m.UpdatedAt = next
	defer func() {
		if err != nil {
			m.UpdatedAt = expected
		}
	}()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.kind, err)
	}

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	if err := r.checkUnique(ctx, tx, rec); err != nil {
		return err
	}

	version := ""
	if !expected.IsZero() {
		version = formatTime(expected)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE records SET status = ?, search = ?, data = ?, updated_at = ?
		WHERE org_id = ? AND kind = ? AND id = ? AND (? = '' OR updated_at = ?)`,
		rec.Status(), rec.SearchText(), string(data), formatTime(next),
		m.OrgID, string(r.kind), m.ID, version, version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM records WHERE org_id = ? AND kind = ? AND id = ?)`,
			m.OrgID, string(r.kind), m.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return notFound(r.kind, m.ID)
		}
		return fmt.Errorf("%w: %s %s was modified concurrently", records.ErrConflict, r.kind, m.ID)
	}
	return tx.Commit()
}

func (r *repo[T]) Delete(ctx context.Context, orgID, id string) (err error) {
	defer r.s.metrics.observe("delete", time.Now(), &err)

	res, err := r.s.db.ExecContext(ctx,
		`DELETE FROM records WHERE org_id = ? AND kind = ? AND id = ?`,
		orgID, string(r.kind), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(r.kind, id)
	}
	return nil
}

func (r *repo[T]) List(ctx context.Context, orgID string, opts records.ListOptions) (_ []T, err error) {
	defer r.s.metrics.observe("list", time.Now(), &err)

	opts = opts.Normalize()
	where := []string{"org_id = ?", "kind = ?"}
	args := []any{orgID, string(r.kind)}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	if q := strings.TrimSpace(opts.Search); q != "" {
		where = append(where, `search LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}
	if opts.ClientID != "" {
		where = append(where, "json_extract(data, '$.client_id') = ?")
		args = append(args, opts.ClientID)
	}
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE `+strings.Join(where, " AND ")+
			` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := r.decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repo[T]) decode(data string) (T, error) {
	rec := r.newT()
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", r.kind, err)
	}
	return rec, nil
}

// checkUnique enforces invoice numbers unique per org.
func (r *repo[T]) checkUnique(ctx context.Context, tx *sql.Tx, rec T) error {
	inv, ok := any(rec).(*records.Invoice)
	if !ok {
		return nil
	}
	var taken bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM records
		WHERE org_id = ? AND kind = ? AND id <> ? AND json_extract(data, '$.number') = ?)`,
		inv.OrgID, string(records.KindInvoice), inv.ID, inv.Number).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: invoice number %s already used", records.ErrConflict, inv.Number)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
