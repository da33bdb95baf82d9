package sqlq

import (
	"sync/atomic"
)

// Query is one SQL statement for backend DB whose rows decode into O.
//
// The text is fixed at construction. Arguments are appended with Bind, the
// output type can be changed with Cast, and the query is then handed to
// exactly one terminal operation: Execute, Fetch, FetchAll, FetchOne or
// FetchOptional. Any later terminal operation fails with ErrQueryConsumed
// and never reaches the executor.
//
// Example:
//
//	type User struct {
//	    ID   int64  `db:"id"`
//	    Name string `db:"name"`
//	}
//
//	u, err := sqlq.NewAs[User, sqlq.Postgres](`SELECT id, name FROM users WHERE id = $1`).
//	    Bind(42).
//	    FetchOne(ctx, conn)
//
// A Query is not safe for concurrent Bind calls; claiming it for a terminal
// operation is.
type Query[DB Backend, O any] struct {
	text      string
	args      *Arguments
	backend   DB
	err       error
	unchecked bool
	consumed  atomic.Bool
}

// New returns a query whose rows decode into the backend's generic [Row].
// No I/O happens and the text is not validated.
func New[DB Backend](query string) *Query[DB, Row] {
	return NewAs[Row, DB](query)
}

// NewAs returns a query whose rows decode into O.
func NewAs[O any, DB Backend](query string) *Query[DB, O] {
	return &Query[DB, O]{text: query, args: &Arguments{}}
}

// failed returns a query that reports err from its terminal operation.
func failed[DB Backend, O any](query string, err error) *Query[DB, O] {
	q := NewAs[O, DB](query)
	q.err = err
	return q
}

// Bind appends v as the next positional argument and returns q.
//
// v must have an SQL type on the query's backend; nil and nil pointers bind
// as NULL, pointers are dereferenced and driver.Valuer values are resolved
// first. The first failure is kept and returned by the terminal operation;
// later Bind calls are then ignored.
func (q *Query[DB, O]) Bind(v any) *Query[DB, O] {
	if q.err != nil || q.consumed.Load() {
		return q
	}
	arg, sqlType, err := encodeArg(q.backend, v, q.args.Len()+1)
	if err != nil {
		q.err = err
		return q
	}
	q.args.add(arg, sqlType)
	return q
}

// Unchecked disables the check that the number of placeholders in the text
// matches the number of bound arguments. Use it for statements whose syntax
// the placeholder scanner cannot follow.
func (q *Query[DB, O]) Unchecked() *Query[DB, O] {
	q.unchecked = true
	return q
}

// SQL returns the statement text.
func (q *Query[DB, O]) SQL() string { return q.text }

// Arguments returns the arguments bound so far.
func (q *Query[DB, O]) Arguments() *Arguments { return q.args }

// Err returns the first error recorded by Bind, if any.
func (q *Query[DB, O]) Err() error { return q.err }

// Cast moves q into a query whose rows decode into U. Text and arguments
// carry over unchanged; q itself is consumed.
//
//	q := sqlq.New[sqlq.SQLite](`SELECT id, name FROM users WHERE id = ?`).Bind(42)
//	u, err := sqlq.Cast[User](q).FetchOne(ctx, conn)
func Cast[U any, DB Backend, O any](q *Query[DB, O]) *Query[DB, U] {
	out := &Query[DB, U]{text: q.text, args: q.args, err: q.err, unchecked: q.unchecked}
	if !q.consumed.CompareAndSwap(false, true) {
		out.err = ErrQueryConsumed
	}
	return out
}

// claim marks q consumed and returns what the executor needs. It fails if q
// was consumed before, if Bind recorded an error, or if the placeholder count
// does not match the arguments.
func (q *Query[DB, O]) claim() (string, *Arguments, error) {
	if !q.consumed.CompareAndSwap(false, true) {
		return "", nil, ErrQueryConsumed
	}
	if q.err != nil {
		return "", nil, q.err
	}
	if !q.unchecked {
		n, err := lexerFor(q.backend).countPlaceholders(q.text)
		if err != nil {
			return "", nil, err
		}
		if n != q.args.Len() {
			return "", nil, &ArityError{Placeholders: n, Arguments: q.args.Len()}
		}
	}
	return q.text, q.args, nil
}
