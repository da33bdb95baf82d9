/*
Package sqlq runs typed SQL statements over database/sql. A statement, its
bound arguments and the Go type its rows decode into are described once, as a
[Query], and run against any [Executor] for the same backend.

# Overview

A query is built, bound, optionally retyped, and then consumed by exactly one
terminal operation:

	q := sqlq.New[sqlq.Postgres](`SELECT id, name FROM users WHERE id = $1`).Bind(42)
	u, err := sqlq.Cast[User](q).FetchOne(ctx, conn)

The terminal operations are Execute (rows affected), Fetch (a lazy
iter.Seq2 of rows), FetchAll, FetchOne and FetchOptional. A second terminal
operation on the same query fails with ErrQueryConsumed without touching the
database.

# Backends

The first type parameter of Query and Executor is a [Backend]: [Postgres],
[MySQL] or [SQLite]. It fixes the placeholder style, the Go types that can be
bound (uint64 has no PostgreSQL type, MySQL has no arrays), how values are
encoded (PostgreSQL slices go through pq.Array) and how driver errors are
classified. A query built for one backend does not compile against an
executor for another.

# Binding

Bind appends one positional argument. Values the backend has no SQL type for
are rejected with ErrUnsupportedType, never coerced. Before the statement is
sent the placeholders in the text are counted and compared with the bound
arguments; a mismatch fails with ErrArityMismatch. [Named] builds a query
from :name parameters and a struct or map.

# Decoding

The default output type is [Row], the backend's generic row. Types that
implement [RowDecoder] decode themselves. Everything else goes through the
[Mapper]: struct fields by `db` tag or case-insensitive name, flattened
`,inline` structs, sql.Scanner types and single-column primitives. A row that
does not fit fails with ErrDecode.

# Errors

  - FetchOne returns ErrNoRows (sql.ErrNoRows) when no row matches.
  - Driver failures come back as *Error. errors.As still reaches the driver's
    own error, and constraint failures match ErrUniqueViolation,
    ErrForeignKeyViolation, ErrNotNullViolation or ErrCheckViolation.
  - Nothing is retried.

# Executors

[Conn] is the database/sql executor. It wraps *sql.DB, *sql.Tx or
*sql.Conn, starts transactions with Begin and logs statements through
log/slog when given WithLogger.
*/
package sqlq
