package sqlq

// RowScanner is the current row of a result cursor. *sql.Rows implements it.
type RowScanner interface {
	Columns() ([]string, error)
	Scan(dest ...any) error
}

// Rows is the native result cursor an [Executor] returns from Fetch.
// *sql.Rows implements it.
type Rows interface {
	RowScanner
	Next() bool
	Err() error
	Close() error
}

// RowDecoder is implemented by output types that decode themselves from the
// current row, usually on a pointer receiver:
//
//	func (u *User) DecodeRow(r sqlq.RowScanner) error {
//	    return r.Scan(&u.ID, &u.Name)
//	}
//
// Output types that do not implement it are decoded by the [Mapper].
type RowDecoder interface {
	DecodeRow(r RowScanner) error
}

// Row is the backend's generic row: the column names and the driver values
// of one result row. It is the default output type of [New].
type Row struct {
	columns []string
	values  []any
}

// DecodeRow copies the current row. Byte slices are cloned by database/sql
// when scanning into *any, so the Row stays valid after the cursor moves.
func (r *Row) DecodeRow(s RowScanner) error {
	cols, err := s.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := s.Scan(dest...); err != nil {
		return err
	}
	r.columns, r.values = cols, vals
	return nil
}

// Columns returns the column names in result order.
func (r Row) Columns() []string { return r.columns }

// Values returns the driver values in result order.
func (r Row) Values() []any { return r.values }

func (r Row) Len() int { return len(r.values) }

// Value returns the i-th value. It panics if i is out of range.
func (r Row) Value(i int) any { return r.values[i] }

// Get returns the value of the named column. Names match the way the Mapper
// matches them: quotes are stripped and comparison is ASCII case-insensitive.
func (r Row) Get(name string) (any, bool) {
	want := normalizeColAscii(name)
	for i, c := range r.columns {
		if normalizeColAscii(c) == want {
			return r.values[i], true
		}
	}
	return nil, false
}
