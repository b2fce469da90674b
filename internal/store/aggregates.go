package store

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/records"
)

// MonthlyRevenue sums paid invoices by the month they were paid.
func (s *Store) MonthlyRevenue(ctx context.Context, orgID string, span records.MonthSpan) (_ []records.MonthlyAmount, err error) {
	defer s.metrics.observe("monthly_revenue", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT month, SUM(amount) FROM (
			SELECT strftime('%Y-%m', json_extract(data, '$.paid_at')) AS month,
			       CAST(json_extract(data, '$.amount_cents') AS INTEGER) AS amount
			FROM records
			WHERE org_id = ? AND kind = 'invoice' AND status = 'paid'
			  AND json_extract(data, '$.paid_at') IS NOT NULL
		)
		WHERE month BETWEEN ? AND ?
		GROUP BY month ORDER BY month`,
		orgID, span.From, span.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.MonthlyAmount
	for rows.Next() {
		var m records.MonthlyAmount
		if err := rows.Scan(&m.Month, &m.Cents); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CaseStatusCounts counts cases opened within span by status.
func (s *Store) CaseStatusCounts(ctx context.Context, orgID string, span records.MonthSpan) (_ map[string]int, err error) {
	defer s.metrics.observe("case_status_counts", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM records
		WHERE org_id = ? AND kind = 'case'
		  AND strftime('%Y-%m', json_extract(data, '$.opened_at')) BETWEEN ? AND ?
		GROUP BY status`,
		orgID, span.From, span.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CaseResolutionDays lists how long each case closed within span stayed open.
func (s *Store) CaseResolutionDays(ctx context.Context, orgID string, span records.MonthSpan) (_ []float64, err error) {
	defer s.metrics.observe("case_resolution_days", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT julianday(json_extract(data, '$.closed_at')) - julianday(json_extract(data, '$.opened_at'))
		FROM records
		WHERE org_id = ? AND kind = 'case' AND status = 'closed'
		  AND json_extract(data, '$.closed_at') IS NOT NULL
		  AND strftime('%Y-%m', json_extract(data, '$.closed_at')) BETWEEN ? AND ?`,
		orgID, span.From, span.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TaskCounts counts tasks created within span. Open tasks past their due
// date at now are overdue.
func (s *Store) TaskCounts(ctx context.Context, orgID string, span records.MonthSpan, now time.Time) (tc records.TaskCounts, err error) {
	defer s.metrics.observe("task_counts", time.Now(), &err)

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status NOT IN ('done', 'cancelled')
		                          AND json_extract(data, '$.due_date') IS NOT NULL
		                          AND julianday(json_extract(data, '$.due_date')) < julianday(?)
		                         THEN 1 ELSE 0 END), 0)
		FROM records
		WHERE org_id = ? AND kind = 'task'
		  AND strftime('%Y-%m', created_at) BETWEEN ? AND ?`,
		formatTime(now), orgID, span.From, span.To).
		Scan(&tc.Total, &tc.Completed, &tc.Cancelled, &tc.Overdue)
	return tc, err
}

// MonthlyNewClients counts clients by the month they were created.
func (s *Store) MonthlyNewClients(ctx context.Context, orgID string, span records.MonthSpan) (_ []records.MonthlyCount, err error) {
	defer s.metrics.observe("monthly_new_clients", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_at) AS month, COUNT(*) FROM records
		WHERE org_id = ? AND kind = 'client'
		  AND strftime('%Y-%m', created_at) BETWEEN ? AND ?
		GROUP BY month ORDER BY month`,
		orgID, span.From, span.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.MonthlyCount
	for rows.Next() {
		var m records.MonthlyCount
		if err := rows.Scan(&m.Month, &m.Count); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClientsBefore counts clients created before month.
func (s *Store) ClientsBefore(ctx context.Context, orgID, month string) (n int, err error) {
	defer s.metrics.observe("clients_before", time.Now(), &err)

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records
		WHERE org_id = ? AND kind = 'client' AND strftime('%Y-%m', created_at) < ?`,
		orgID, month).Scan(&n)
	return n, err
}
