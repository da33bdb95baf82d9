// Package ui renders sqlq CLI output.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// Printer writes results to Out and diagnostics to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	successColor.Fprintln(p.Out, "✓ "+fmt.Sprintf(format, args...))
}

// Error prints an error message to Err
func (p *Printer) Error(format string, args ...any) {
	errorColor.Fprintln(p.Err, "✗ "+fmt.Sprintf(format, args...))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	warningColor.Fprintln(p.Out, "⚠ "+fmt.Sprintf(format, args...))
}

// Info prints an info message
func (p *Printer) Info(format string, args ...any) {
	infoColor.Fprintln(p.Out, "ℹ "+fmt.Sprintf(format, args...))
}

// Table renders a table with a header row using pterm.
func (p *Printer) Table(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.Out, s)
	return err
}

// Line prints cells tab-separated, for streamed output.
func (p *Printer) Line(cells []string) {
	fmt.Fprintln(p.Out, strings.Join(cells, "\t"))
}

// Cell renders one database value for display.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// Cells renders a row of values.
func Cells(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = Cell(v)
	}
	return out
}
