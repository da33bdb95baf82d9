package sqlq

import (
	"context"
)

// FetchOne runs the query and decodes the first row.
//
// It returns [ErrNoRows] if the query yields no rows. Rows after the first
// are discarded; add LIMIT 1 (or an equivalent WHERE clause) when the
// statement could match more.
//
// Example:
//
//	u, err := sqlq.NewAs[User, sqlq.Postgres](`SELECT id, name FROM users WHERE id = $1`).
//	    Bind(42).
//	    FetchOne(ctx, conn)
//	if errors.Is(err, sqlq.ErrNoRows) {
//	    // handle not found
//	}
func (q *Query[DB, O]) FetchOne(ctx context.Context, e Executor[DB]) (O, error) {
	v, ok, err := q.FetchOptional(ctx, e)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrNoRows
	}
	return v, nil
}

// FetchOptional runs the query and decodes the first row, if any.
//
// Zero rows is not an error: ok is false. Rows after the first are
// discarded.
func (q *Query[DB, O]) FetchOptional(ctx context.Context, e Executor[DB]) (out O, ok bool, err error) {
	for v, err := range q.Fetch(ctx, e) {
		if err != nil {
			return out, false, err
		}
		return v, true, nil
	}
	return out, false, nil
}
