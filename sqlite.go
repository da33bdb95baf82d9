package sqlq

import (
	"errors"
	"reflect"

	"github.com/mattn/go-sqlite3"
)

// SQLite is the SQLite backend, driven by github.com/mattn/go-sqlite3.
// Integers are stored as signed 64-bit, so uint and uint64 are rejected.
type SQLite struct{}

func (SQLite) Name() string             { return "sqlite" }
func (SQLite) Driver() string           { return "sqlite3" }
func (SQLite) Placeholder() Placeholder { return PlaceholderQuestion }

// Syntax reports SQLite's own :name, @name and $name parameters, which
// database/sql binds by position in order of first appearance.
func (SQLite) Syntax() Syntax { return Syntax{NamedParams: true} }

func (SQLite) SQLType(t reflect.Type) (string, bool) {
	if t == timeType {
		return "DATETIME", true
	}
	if isBytes(t) {
		return "BLOB", true
	}
	k, ok := scalarKind(t)
	if !ok {
		return "", false
	}
	switch k {
	case reflect.Uint, reflect.Uint64:
		return "", false
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	}
	return "INTEGER", true
}

func (SQLite) Encode(v any) any { return v }

func (SQLite) Translate(err error) error {
	var liteErr sqlite3.Error
	if !errors.As(err, &liteErr) {
		return nil
	}
	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ErrUniqueViolation
	case sqlite3.ErrConstraintForeignKey:
		return ErrForeignKeyViolation
	case sqlite3.ErrConstraintNotNull:
		return ErrNotNullViolation
	case sqlite3.ErrConstraintCheck:
		return ErrCheckViolation
	}
	return nil
}
