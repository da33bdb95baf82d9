package sqlq

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Executor runs statements for backend DB.
//
// Execute runs a statement that returns no rows and reports the number of
// rows affected. Fetch runs a query and returns its cursor; the caller closes
// it. The typed terminal operations on [Query] are built from these two, so
// any executor gets all five. Retries, pooling and transactions are the
// executor's business.
type Executor[DB Backend] interface {
	Backend() DB
	Execute(ctx context.Context, query string, args *Arguments) (uint64, error)
	Fetch(ctx context.Context, query string, args *Arguments) (Rows, error)
}

// Querier is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a query returning rows.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx, *sql.Conn, and any wrapper
// that can execute a statement that does not return rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Beginner is implemented by *sql.DB and *sql.Conn. It starts a transaction.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// DBTX is the handle a Conn runs on: *sql.DB, *sql.Tx or *sql.Conn.
type DBTX interface {
	Querier
	Execer
}

// Option configures a Conn.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	logArgs   bool
	slowQuery time.Duration
	maxSQLLen int
}

// WithLogger logs every statement at Debug level, and slow ones at Warn.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogArgs includes a redacted rendering of the arguments in log records
// instead of only their count.
func WithLogArgs(on bool) Option {
	return func(o *options) { o.logArgs = on }
}

// WithSlowQuery sets the duration above which statements log at Warn.
// Zero disables slow query reporting.
func WithSlowQuery(d time.Duration) Option {
	return func(o *options) { o.slowQuery = d }
}

// WithMaxLoggedSQL caps the length of SQL text in log records.
func WithMaxLoggedSQL(n int) Option {
	return func(o *options) { o.maxSQLLen = n }
}

// Conn is an [Executor] over database/sql.
//
// It is safe for concurrent use whenever its handle is (a *sql.DB is; a
// *sql.Tx or *sql.Conn is not).
type Conn[DB Backend] struct {
	backend DB
	db      DBTX
	owned   *sql.DB
	opts    options
}

// NewConn wraps an existing handle. Closing the returned Conn does not close
// the handle.
func NewConn[DB Backend](db DBTX, opts ...Option) *Conn[DB] {
	c := &Conn[DB]{db: db}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Open opens a *sql.DB with the backend's driver and wraps it. The Conn owns
// the handle and Close closes it. Like sql.Open, Open does not connect; use
// Ping to check the DSN.
func Open[DB Backend](dsn string, opts ...Option) (*Conn[DB], error) {
	var b DB
	db, err := sql.Open(b.Driver(), dsn)
	if err != nil {
		return nil, wrapDriverErr(b, "open", "", err)
	}
	c := NewConn[DB](db, opts...)
	c.owned = db
	return c, nil
}

// Backend returns the backend value. It exists so that Conn satisfies
// Executor[DB] for exactly one DB.
func (c *Conn[DB]) Backend() DB { return c.backend }

// DB returns the owned *sql.DB, or nil when the Conn wraps a caller's handle.
func (c *Conn[DB]) DB() *sql.DB { return c.owned }

// Ping checks the connection when the handle supports it.
func (c *Conn[DB]) Ping(ctx context.Context) error {
	p, ok := c.db.(interface{ PingContext(context.Context) error })
	if !ok {
		return nil
	}
	return wrapDriverErr(c.backend, "ping", "", p.PingContext(ctx))
}

// Close closes the handle if Open created it.
func (c *Conn[DB]) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

func (c *Conn[DB]) Execute(ctx context.Context, query string, args *Arguments) (uint64, error) {
	start := time.Now()
	res, err := c.db.ExecContext(ctx, query, args.Values()...)
	c.log(ctx, "execute", query, args, time.Since(start), err)
	if err != nil {
		return 0, wrapDriverErr(c.backend, "execute", query, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDriverErr(c.backend, "rows affected", query, err)
	}
	if n < 0 {
		return 0, &Error{Op: "rows affected", Query: query, Err: ErrRowsAffectedUnknown}
	}
	return uint64(n), nil
}

func (c *Conn[DB]) Fetch(ctx context.Context, query string, args *Arguments) (Rows, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args.Values()...)
	c.log(ctx, "fetch", query, args, time.Since(start), err)
	if err != nil {
		return nil, wrapDriverErr(c.backend, "fetch", query, err)
	}
	return &driverRows{Rows: rows, backend: c.backend, query: query}, nil
}

// Begin starts a transaction on the Conn's handle. The returned Tx is an
// Executor for the same backend and carries the Conn's options.
func (c *Conn[DB]) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx[DB], error) {
	b, ok := c.db.(Beginner)
	if !ok {
		return nil, ErrNoBeginner
	}
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return nil, wrapDriverErr(c.backend, "begin", "", err)
	}
	return &Tx[DB]{Conn: &Conn[DB]{db: tx, opts: c.opts}, tx: tx}, nil
}

// Tx is a Conn bound to one database transaction.
type Tx[DB Backend] struct {
	*Conn[DB]
	tx *sql.Tx
}

func (t *Tx[DB]) Commit() error {
	return wrapDriverErr(t.backend, "commit", "", t.tx.Commit())
}

func (t *Tx[DB]) Rollback() error {
	return wrapDriverErr(t.backend, "rollback", "", t.tx.Rollback())
}

// driverRows classifies errors surfaced while iterating.
type driverRows struct {
	*sql.Rows
	backend Backend
	query   string
}

func (r *driverRows) Err() error {
	return wrapDriverErr(r.backend, "fetch", r.query, r.Rows.Err())
}
