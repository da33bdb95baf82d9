package sqlq

// Arguments is the ordered list of values bound to one query.
//
// Values are stored already encoded for the query's backend, in bind order,
// together with the SQL type name each one was accepted as. The zero value is
// an empty list. Arguments is append-only; the executor reads it.
type Arguments struct {
	values []any
	types  []string
}

// Len returns the number of bound values.
func (a *Arguments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.values)
}

// Values returns the encoded values in bind order, ready to be spread into
// database/sql calls. The slice must not be modified.
func (a *Arguments) Values() []any {
	if a == nil {
		return nil
	}
	return a.values
}

// Types returns the SQL type name of each value, parallel to Values.
func (a *Arguments) Types() []string {
	if a == nil {
		return nil
	}
	return a.types
}

func (a *Arguments) add(v any, sqlType string) {
	a.values = append(a.values, v)
	a.types = append(a.types, sqlType)
}
