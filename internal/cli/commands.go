package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/go-mizu/sqlq"
	"github.com/go-mizu/sqlq/internal/ui"
)

func newExecCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL [ARG...]",
		Short: "Run a statement that returns no rows and print the rows affected",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			binds, err := ParseArgs(args[1:])
			if err != nil {
				return err
			}
			r, ctx, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			n, err := r.Exec(ctx, args[0], binds)
			if err != nil {
				return err
			}
			a.ui.Success("%d row(s) affected", n)
			return nil
		},
	}
}

func newQueryCommand(a *app) *cobra.Command {
	var one, optional, stream bool

	cmd := &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run a query and print its rows",
		Long: `Run a query and print its rows as a table.

--one fails when no row matches, --optional prints nothing in that case,
and --stream prints rows tab-separated as they arrive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := fetchAll
			switch {
			case one:
				mode = fetchOne
			case optional:
				mode = fetchOptional
			case stream:
				mode = fetchStream
			}
			binds, err := ParseArgs(args[1:])
			if err != nil {
				return err
			}
			r, ctx, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var (
				headers []string
				cells   [][]string
			)
			err = r.Query(ctx, args[0], binds, mode, func(row sqlq.Row) error {
				if mode == fetchStream {
					a.ui.Line(ui.Cells(row.Values()))
					return nil
				}
				if headers == nil {
					headers = row.Columns()
				}
				cells = append(cells, ui.Cells(row.Values()))
				return nil
			})
			if errors.Is(err, sqlq.ErrNoRows) {
				a.ui.Warning("no rows")
				return reportedError{err}
			}
			if err != nil {
				return err
			}
			if mode == fetchStream {
				return nil
			}
			if len(cells) == 0 {
				a.ui.Info("no rows")
				return nil
			}
			return a.ui.Table(headers, cells)
		},
	}
	cmd.Flags().BoolVar(&one, "one", false, "require exactly the first row")
	cmd.Flags().BoolVar(&optional, "optional", false, "print the first row, if any")
	cmd.Flags().BoolVar(&stream, "stream", false, "print rows as they are read")
	cmd.MarkFlagsMutuallyExclusive("one", "optional", "stream")
	return cmd
}

func newPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, ctx, done, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := r.Ping(ctx); err != nil {
				return err
			}
			a.ui.Success("connected (%s)", a.cfg.Provider)
			return nil
		},
	}
}
