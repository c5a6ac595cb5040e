package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/crossroads/internal/ir"
)

// Filter selects dispatches. Empty fields match everything.
type Filter struct {
	Path      string
	Interface string
	Member    string
	Outcome   ir.Outcome
	ErrorName string

	// AfterSeq keeps dispatches with seq greater than it.
	AfterSeq int64

	// Limit caps the result; zero or less means no limit.
	Limit int
}

// compile renders f as parameterized SQL. Values are always bound, never
// interpolated, and every query carries the seq, id order.
func (f Filter) compile() (string, []any) {
	var conds []string
	var params []any
	for _, eq := range []struct {
		column string
		value  string
	}{
		{"path", f.Path},
		{"interface", f.Interface},
		{"member", f.Member},
		{"outcome", string(f.Outcome)},
		{"error_name", f.ErrorName},
	} {
		if eq.value != "" {
			conds = append(conds, eq.column+" = ?")
			params = append(params, eq.value)
		}
	}
	if f.AfterSeq > 0 {
		conds = append(conds, "seq > ?")
		params = append(params, f.AfterSeq)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	params = append(params, limit)

	return `SELECT ` + dispatchColumns + ` FROM dispatches` + where +
		` ORDER BY seq ASC, id COLLATE BINARY ASC LIMIT ?`, params
}

// QueryDispatches returns the dispatches matching f ordered by seq ASC,
// id ASC.
func (s *Store) QueryDispatches(ctx context.Context, f Filter) ([]ir.Dispatch, error) {
	query, params := f.compile()
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []ir.Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}
