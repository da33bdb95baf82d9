package sqlq

import (
	"context"
	"iter"
)

// Fetch runs the query and returns its rows as a lazy sequence.
//
// The query is consumed when Fetch is called. The statement is sent on the
// first pull and rows are decoded one at a time, in the order the backend
// returns them. The cursor is closed when the range loop ends or breaks.
//
// Each element carries its own error. A row that fails to decode yields a
// *DecodeError and the loop may keep going; an error from the executor or
// the cursor is yielded last. Ranging over the sequence a second time yields
// a single ErrQueryConsumed.
//
// Example:
//
//	for u, err := range sqlq.NewAs[User, sqlq.MySQL](`SELECT id, name FROM users`).Fetch(ctx, conn) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(u.ID, u.Name)
//	}
func (q *Query[DB, O]) Fetch(ctx context.Context, e Executor[DB]) iter.Seq2[O, error] {
	text, args, claimErr := q.claim()
	var pulled bool
	return func(yield func(O, error) bool) {
		var zero O
		if pulled {
			yield(zero, ErrQueryConsumed)
			return
		}
		pulled = true
		if claimErr != nil {
			yield(zero, claimErr)
			return
		}
		rows, err := e.Fetch(ctx, text, args)
		if err != nil {
			yield(zero, err)
			return
		}

		m := getMapper() // lazy, thread-safe
		for rows.Next() {
			if !yield(decodeRow[O](m, rows)) {
				_ = rows.Close()
				return
			}
		}
		// Report the cursor error first, then a Close failure.
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			yield(zero, err)
			return
		}
		if err := rows.Close(); err != nil {
			yield(zero, err)
		}
	}
}

// FetchAll runs the query and decodes every row, in order.
//
// It is Fetch drained into a slice: the first error of any kind fails the
// call and no rows are returned. An empty result is a nil slice and no error.
func (q *Query[DB, O]) FetchAll(ctx context.Context, e Executor[DB]) ([]O, error) {
	var out []O
	for v, err := range q.Fetch(ctx, e) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
