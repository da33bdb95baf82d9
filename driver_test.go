package sqlq

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
	"testing"
)

// In-memory database/sql driver. Queries are answered by a queryHandler,
// statements by an execHandler.

type queryHandler func(query string, args []driver.NamedValue) (cols []string, rows [][]driver.Value, err error)

type execHandler func(query string, args []driver.NamedValue) (driver.Result, error)

type testConnector struct {
	q queryHandler
	e execHandler
}

func (c *testConnector) Connect(context.Context) (driver.Conn, error) {
	return &testConn{q: c.q, e: c.e}, nil
}
func (c *testConnector) Driver() driver.Driver { return testDriver{} }

type testDriver struct{}

func (testDriver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("testDriver.Open should not be called; use sql.OpenDB with connector")
}

type testConn struct {
	q queryHandler
	e execHandler
}

func (c *testConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *testConn) Close() error                        { return nil }
func (c *testConn) Begin() (driver.Tx, error)           { return testTx{}, nil }

func (c *testConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.q == nil {
		return nil, errors.New("query not supported by test connection")
	}
	cols, data, err := c.q(query, args)
	if err != nil {
		return nil, err
	}
	return &testRows{cols: cols, data: data}, nil
}

func (c *testConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.e == nil {
		return nil, errors.New("exec not supported by test connection")
	}
	return c.e(query, args)
}

type testTx struct{}

func (testTx) Commit() error   { return nil }
func (testTx) Rollback() error { return nil }

type testRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *testRows) Columns() []string { return append([]string(nil), r.cols...) }
func (r *testRows) Close() error      { return nil }
func (r *testRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.i]
	for i := range dest {
		if i < len(row) {
			dest[i] = row[i]
		} else {
			dest[i] = nil
		}
	}
	r.i++
	return nil
}

type testResult struct {
	lastID int64
	rows   int64
	raErr  error
}

func (r testResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r testResult) RowsAffected() (int64, error) { return r.rows, r.raErr }

// errNextConnector serves one column and fails on the first Next.
type errNextConnector struct{}

func (c *errNextConnector) Connect(context.Context) (driver.Conn, error) { return &errNextConn{}, nil }
func (c *errNextConnector) Driver() driver.Driver                        { return testDriver{} }

type errNextConn struct{}

func (c *errNextConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (c *errNextConn) Close() error                        { return nil }
func (c *errNextConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }
func (c *errNextConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return &errRows{}, nil
}

type errRows struct{}

func (e *errRows) Columns() []string { return []string{"a"} }
func (e *errRows) Close() error      { return nil }
func (e *errRows) Next(dest []driver.Value) error {
	return errors.New("driver next error")
}

// newTestDB creates a *sql.DB backed by the in-memory test driver.
func newTestDB(t *testing.T, q queryHandler, e execHandler) *sql.DB {
	t.Helper()
	db := sql.OpenDB(&testConnector{q: q, e: e})
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// rowsOf answers every query with the same result set.
func rowsOf(cols []string, rows ...[]driver.Value) queryHandler {
	return func(string, []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return cols, rows, nil
	}
}

// argValues strips the ordinal wrappers from driver arguments.
func argValues(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// memExecutor is an Executor that does not go through database/sql: it
// serves fixed rows and records what it was asked to run.
type memExecutor[DB Backend] struct {
	cols     []string
	rows     [][]any
	affected uint64
	err      error

	calls     int
	lastQuery string
	lastArgs  []any
}

func (m *memExecutor[DB]) Backend() DB {
	var b DB
	return b
}

func (m *memExecutor[DB]) Execute(_ context.Context, query string, args *Arguments) (uint64, error) {
	m.calls++
	m.lastQuery, m.lastArgs = query, args.Values()
	if m.err != nil {
		return 0, m.err
	}
	return m.affected, nil
}

func (m *memExecutor[DB]) Fetch(_ context.Context, query string, args *Arguments) (Rows, error) {
	m.calls++
	m.lastQuery, m.lastArgs = query, args.Values()
	if m.err != nil {
		return nil, m.err
	}
	return &memRows{cols: m.cols, data: m.rows, i: -1}, nil
}

type memRows struct {
	cols   []string
	data   [][]any
	i      int
	closed bool
}

func (r *memRows) Columns() ([]string, error) { return r.cols, nil }
func (r *memRows) Next() bool {
	if r.closed || r.i+1 >= len(r.data) {
		return false
	}
	r.i++
	return true
}
func (r *memRows) Err() error   { return nil }
func (r *memRows) Close() error { r.closed = true; return nil }

// Scan assigns each value into dest, converting when the types allow it.
func (r *memRows) Scan(dest ...any) error {
	row := r.data[r.i]
	if len(dest) != len(row) {
		return errors.New("memRows: column count mismatch")
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			dv.Set(reflect.Zero(dv.Type()))
			continue
		}
		sv := reflect.ValueOf(row[i])
		switch {
		case sv.Type().AssignableTo(dv.Type()):
			dv.Set(sv)
		case sv.Type().ConvertibleTo(dv.Type()):
			dv.Set(sv.Convert(dv.Type()))
		default:
			return errors.New("memRows: cannot assign " + sv.Type().String() + " to " + dv.Type().String())
		}
	}
	return nil
}
