package sqlq

import (
	"context"
)

// Execute runs a statement that returns no rows (INSERT, UPDATE, DELETE,
// DDL) and reports the number of rows affected.
//
// The text is sent as written; write placeholders the way the backend
// expects them.
//
// Example:
//
//	n, err := sqlq.New[sqlq.MySQL](`DELETE FROM sessions WHERE user_id = ?`).
//	    Bind(7).
//	    Execute(ctx, conn)
func (q *Query[DB, O]) Execute(ctx context.Context, e Executor[DB]) (uint64, error) {
	text, args, err := q.claim()
	if err != nil {
		return 0, err
	}
	return e.Execute(ctx, text, args)
}
