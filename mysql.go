package sqlq

import (
	"errors"
	"reflect"

	"github.com/go-sql-driver/mysql"
)

// MySQL is the MySQL/MariaDB backend, driven by github.com/go-sql-driver/mysql.
// It accepts the full unsigned range; slices other than []byte are rejected.
type MySQL struct{}

func (MySQL) Name() string             { return "mysql" }
func (MySQL) Driver() string           { return "mysql" }
func (MySQL) Placeholder() Placeholder { return PlaceholderQuestion }

func (MySQL) Syntax() Syntax {
	return Syntax{BackslashEscapes: true, HashComments: true}
}

func (MySQL) SQLType(t reflect.Type) (string, bool) {
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
	case reflect.Bool:
		return "BOOLEAN", true
	case reflect.Int8:
		return "TINYINT", true
	case reflect.Int16:
		return "SMALLINT", true
	case reflect.Int32:
		return "INT", true
	case reflect.Int, reflect.Int64:
		return "BIGINT", true
	case reflect.Uint8:
		return "TINYINT UNSIGNED", true
	case reflect.Uint16:
		return "SMALLINT UNSIGNED", true
	case reflect.Uint32:
		return "INT UNSIGNED", true
	case reflect.Uint, reflect.Uint64:
		return "BIGINT UNSIGNED", true
	case reflect.Float32:
		return "FLOAT", true
	case reflect.Float64:
		return "DOUBLE", true
	case reflect.String:
		return "TEXT", true
	}
	return "", false
}

func (MySQL) Encode(v any) any { return v }

// MySQL server error numbers for integrity constraint violations.
const (
	myBadNull         = 1048
	myDupEntry        = 1062
	myRowIsReferenced = 1451
	myNoReferencedRow = 1452
	myCheckViolated   = 3819
)

func (MySQL) Translate(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	switch myErr.Number {
	case myDupEntry:
		return ErrUniqueViolation
	case myRowIsReferenced, myNoReferencedRow:
		return ErrForeignKeyViolation
	case myBadNull:
		return ErrNotNullViolation
	case myCheckViolated:
		return ErrCheckViolation
	}
	return nil
}
