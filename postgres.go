package sqlq

import (
	"errors"
	"reflect"

	"github.com/lib/pq"
)

// Postgres is the PostgreSQL backend, driven by github.com/lib/pq.
//
// Slices and arrays of scalars bind as PostgreSQL arrays through
// [pq.Array], so `WHERE id = ANY($1)` takes a []int64 directly. Unsigned
// 64-bit integers have no PostgreSQL type and are rejected.
type Postgres struct{}

func (Postgres) Name() string             { return "postgres" }
func (Postgres) Driver() string           { return "postgres" }
func (Postgres) Placeholder() Placeholder { return PlaceholderDollar }

func (Postgres) Syntax() Syntax {
	return Syntax{DollarQuotes: true, EscapeStrings: true}
}

func (Postgres) SQLType(t reflect.Type) (string, bool) {
	if isBytes(t) || t == timeType {
		return postgresScalar(t)
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem, ok := postgresScalar(t.Elem())
		if !ok {
			return "", false
		}
		return elem + "[]", true
	}
	return postgresScalar(t)
}

func postgresScalar(t reflect.Type) (string, bool) {
	if t == timeType {
		return "timestamptz", true
	}
	if isBytes(t) {
		return "bytea", true
	}
	k, ok := scalarKind(t)
	if !ok {
		return "", false
	}
	switch k {
	case reflect.Bool:
		return "boolean", true
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "smallint", true
	case reflect.Int32, reflect.Uint16:
		return "integer", true
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return "bigint", true
	case reflect.Float32:
		return "real", true
	case reflect.Float64:
		return "double precision", true
	case reflect.String:
		return "text", true
	}
	return "", false
}

func (Postgres) Encode(v any) any {
	t := reflect.TypeOf(v)
	if isBytes(t) {
		return v
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return pq.Array(v)
	}
	return v
}

// PostgreSQL SQLSTATE codes for integrity constraint violations.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

func (Postgres) Translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch pqErr.Code {
	case pgUniqueViolation:
		return ErrUniqueViolation
	case pgForeignKeyViolation:
		return ErrForeignKeyViolation
	case pgNotNullViolation:
		return ErrNotNullViolation
	case pgCheckViolation:
		return ErrCheckViolation
	}
	return nil
}
