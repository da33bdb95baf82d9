package sqlq

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
)

// ErrNoRows is returned by FetchOne when the query yields no rows. It is
// [sql.ErrNoRows], so existing errors.Is checks keep working.
var ErrNoRows = sql.ErrNoRows

// ErrQueryConsumed is returned when a Query is handed to a second terminal
// operation, or used after Cast moved it.
var ErrQueryConsumed = errors.New("sqlq: query already consumed")

// ErrArityMismatch is matched by [*ArityError].
var ErrArityMismatch = errors.New("sqlq: placeholder count does not match bound arguments")

// ErrUnsupportedType is matched by [*UnsupportedTypeError].
var ErrUnsupportedType = errors.New("sqlq: unsupported parameter type")

// ErrDecode is matched by [*DecodeError].
var ErrDecode = errors.New("sqlq: cannot decode row")

// ErrRowsAffectedUnknown is returned by Execute when the driver reports a
// negative row count.
var ErrRowsAffectedUnknown = errors.New("sqlq: driver did not report rows affected")

// ErrNoBeginner is returned by Begin when the underlying handle cannot
// start transactions (for example a *sql.Tx).
var ErrNoBeginner = errors.New("sqlq: handle does not support transactions")

// Constraint classes reported by a Backend's Translate.
var (
	ErrUniqueViolation     = errors.New("sqlq: unique constraint violation")
	ErrForeignKeyViolation = errors.New("sqlq: foreign key constraint violation")
	ErrNotNullViolation    = errors.New("sqlq: not null constraint violation")
	ErrCheckViolation      = errors.New("sqlq: check constraint violation")
)

// ArityError reports a statement whose placeholders do not match the number
// of bound arguments.
type ArityError struct {
	Placeholders int
	Arguments    int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("sqlq: statement has %d placeholder(s) but %d argument(s) were bound", e.Placeholders, e.Arguments)
}

func (e *ArityError) Is(target error) bool { return target == ErrArityMismatch }

// UnsupportedTypeError reports a value the backend has no SQL type for.
type UnsupportedTypeError struct {
	Backend  string
	Type     reflect.Type
	Position int // 1-based bind position
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("sqlq: %s has no SQL type for %s (argument %d)", e.Backend, e.Type, e.Position)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// DecodeError reports a row that could not be converted into the output type.
type DecodeError struct {
	Type reflect.Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sqlq: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Error wraps a failure reported by the database driver.
//
// Err is the driver's error, unchanged, so errors.As can still reach
// *pq.Error, *mysql.MySQLError or sqlite3.Error. Kind is the constraint class
// the backend recognised, or nil.
type Error struct {
	Op    string
	Query string
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sqlq: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// wrapDriverErr attaches the operation, query and backend classification to
// a driver error. Errors that are already wrapped pass through.
func wrapDriverErr(b Backend, op, query string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Query: query, Kind: b.Translate(err), Err: err}
}
