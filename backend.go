package sqlq

import (
	"database/sql/driver"
	"reflect"
	"time"
)

// Backend identifies one database engine family.
//
// Backends are zero-size struct types used as the first type parameter of
// [Query] and [Executor]; a query built for one backend cannot be handed to
// an executor of another. The methods describe what the engine accepts:
//
//   - Driver is the database/sql driver name used by [Open].
//   - Placeholder is the positional parameter style the engine expects.
//   - Syntax describes quoting, comments and native parameters, so the
//     placeholder count of a statement matches what the engine sees.
//   - SQLType reports the SQL type a Go type binds as, or false when the
//     engine has none. Bind consults it for every value.
//   - Encode turns an accepted value into what the driver should receive.
//   - Translate classifies a driver error into one of the constraint
//     sentinels (ErrUniqueViolation, ...) or returns nil.
type Backend interface {
	Name() string
	Driver() string
	Placeholder() Placeholder
	Syntax() Syntax
	SQLType(t reflect.Type) (string, bool)
	Encode(v any) any
	Translate(err error) error
}

// Placeholder is a positional parameter style. Only Question and Dollar are
// used by the built-in backends; the other two are accepted by [Rebind].
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota // ?
	PlaceholderDollar                      // $1, $2
	PlaceholderAtP                         // @p1, @p2
	PlaceholderColonNum                    // :1, :2
)

// Syntax lists the lexical rules of a backend that change where its SQL
// text contains placeholders. The zero value is plain ANSI SQL: quotes
// escaped by doubling, -- and /* */ comments.
type Syntax struct {
	// BackslashEscapes lets \ escape the next byte in '...' and "..."
	// (MySQL without NO_BACKSLASH_ESCAPES).
	BackslashEscapes bool
	// EscapeStrings lets \ escape inside E'...' literals (PostgreSQL).
	EscapeStrings bool
	// HashComments starts a line comment at # (MySQL).
	HashComments bool
	// DollarQuotes enables $$...$$ and $tag$...$tag$ blocks (PostgreSQL).
	DollarQuotes bool
	// NamedParams counts :name, @name and $name as parameters, one per
	// distinct name (SQLite).
	NamedParams bool
}

var timeType = reflect.TypeOf(time.Time{})

const sqlNullName = "NULL"

// encodeArg resolves v into the value handed to the driver and the SQL type
// name it was accepted as. pos is the 1-based bind position.
func encodeArg(b Backend, v any, pos int) (any, string, error) {
	if v == nil {
		return nil, sqlNullName, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, sqlNullName, nil
	}
	if vr, ok := v.(driver.Valuer); ok {
		dv, err := vr.Value()
		if err != nil {
			return nil, "", err
		}
		if dv == nil {
			return nil, sqlNullName, nil
		}
		v, rv = dv, reflect.ValueOf(dv)
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, sqlNullName, nil
		}
		rv = rv.Elem()
	}
	name, ok := b.SQLType(rv.Type())
	if !ok {
		return nil, "", &UnsupportedTypeError{Backend: b.Name(), Type: rv.Type(), Position: pos}
	}
	return b.Encode(rv.Interface()), name, nil
}

// isBytes reports whether t is []byte or a named type over it.
func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// scalarKind returns t's kind when t is a bool, number or string type.
// Named types (type UserID int64) are accepted the same way database/sql's
// default converter accepts them.
func scalarKind(t reflect.Type) (reflect.Kind, bool) {
	switch k := t.Kind(); k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return k, true
	}
	return reflect.Invalid, false
}
