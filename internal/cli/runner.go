package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-mizu/sqlq"
	"github.com/go-mizu/sqlq/internal/config"
)

type fetchMode int

const (
	fetchAll fetchMode = iota
	fetchOne
	fetchOptional
	fetchStream
)

// runner runs untyped statements on one connection. Each provider gets
// the same generic implementation instantiated with its backend.
type runner interface {
	Exec(ctx context.Context, query string, args []any) (uint64, error)
	Query(ctx context.Context, query string, args []any, mode fetchMode, emit func(sqlq.Row) error) error
	Ping(ctx context.Context) error
	Close() error
}

func openRunner(cfg *config.Config, logger *slog.Logger) (runner, error) {
	switch cfg.Provider {
	case config.ProviderPostgres:
		return openConn[sqlq.Postgres](cfg, logger)
	case config.ProviderMySQL:
		return openConn[sqlq.MySQL](cfg, logger)
	case config.ProviderSQLite:
		return openConn[sqlq.SQLite](cfg, logger)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
}

type conn[DB sqlq.Backend] struct {
	c *sqlq.Conn[DB]
}

func openConn[DB sqlq.Backend](cfg *config.Config, logger *slog.Logger) (runner, error) {
	c, err := sqlq.Open[DB](cfg.URL,
		sqlq.WithLogger(logger),
		sqlq.WithLogArgs(cfg.LogArgs),
		sqlq.WithSlowQuery(cfg.SlowQuery),
	)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		c.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &conn[DB]{c: c}, nil
}

func bind[DB sqlq.Backend](query string, args []any) *sqlq.Query[DB, sqlq.Row] {
	q := sqlq.New[DB](query)
	for _, a := range args {
		q.Bind(a)
	}
	return q
}

func (r *conn[DB]) Exec(ctx context.Context, query string, args []any) (uint64, error) {
	return bind[DB](query, args).Execute(ctx, r.c)
}

func (r *conn[DB]) Query(ctx context.Context, query string, args []any, mode fetchMode, emit func(sqlq.Row) error) error {
	q := bind[DB](query, args)
	switch mode {
	case fetchOne:
		row, err := q.FetchOne(ctx, r.c)
		if err != nil {
			return err
		}
		return emit(row)
	case fetchOptional:
		row, ok, err := q.FetchOptional(ctx, r.c)
		if err != nil || !ok {
			return err
		}
		return emit(row)
	case fetchStream:
		for row, err := range q.Fetch(ctx, r.c) {
			if err != nil {
				return err
			}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	default:
		rows, err := q.FetchAll(ctx, r.c)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	}
}

func (r *conn[DB]) Ping(ctx context.Context) error { return r.c.Ping(ctx) }

func (r *conn[DB]) Close() error { return r.c.Close() }
