// Package cli implements the sqlq command.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-mizu/sqlq/internal/config"
	"github.com/go-mizu/sqlq/internal/ui"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	cfg     *config.Config
	ui      *ui.Printer
	open    func(*config.Config, *slog.Logger) (runner, error)
}

// Main runs the sqlq command with args and returns the process exit code.
// Errors are printed once, unless the command already reported them.
func Main(args []string, out, errOut io.Writer) int {
	cmd := NewRootCommand(out, errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	var shown reportedError
	if !errors.As(err, &shown) {
		ui.New(out, errOut).Error("%v", err)
	}
	return 1
}

// reportedError marks an error the command has already shown to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// NewRootCommand builds the sqlq command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{
		v:    config.New(),
		ui:   ui.New(out, errOut),
		open: openRunner,
	}

	cmd := &cobra.Command{
		Use:   "sqlq",
		Short: "Run SQL statements against PostgreSQL, MySQL or SQLite",
		Long: `sqlq runs one statement per invocation through typed, single-use queries.

Arguments after the SQL text are bound in order. Prefix them to pick a type:
i:42 (integer), f:1.5 (float), b:true (bool), s:text (string), null.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	f := cmd.PersistentFlags()
	f.String("provider", "", "database provider: postgres, mysql or sqlite")
	f.String("url", "", "data source name (default $SQLQ_URL or $DATABASE_URL)")
	f.Duration("timeout", 0, "statement timeout (default 30s)")
	f.StringVar(&a.cfgFile, "config", "", "config file (default .sqlq.yaml)")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "log every statement to stderr")
	for _, name := range []string{"provider", "url", "timeout"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}

	cmd.AddCommand(
		newExecCommand(a),
		newQueryCommand(a),
		newPingCommand(a),
	)
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	a.cfg = cfg
	return nil
}

func (a *app) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(a.ui.Err, &slog.HandlerOptions{Level: a.cfg.LogLevel}))
}

// connect opens a runner and a context bounded by the configured timeout.
// The returned func releases both.
func (a *app) connect(ctx context.Context) (runner, context.Context, func(), error) {
	r, err := a.open(a.cfg, a.logger())
	if err != nil {
		return nil, nil, nil, err
	}
	cancel := func() {}
	if a.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return r, ctx, func() {
		cancel()
		_ = r.Close()
	}, nil
}
