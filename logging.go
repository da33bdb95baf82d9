package sqlq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultMaxLoggedSQL  = 2048
	maxLoggedArgs        = 20
	maxLoggedArgsLen     = 512
	maxLoggedScalarWidth = 64
)

// log records one statement. Statements slower than the slow threshold log
// at Warn, everything else at Debug.
func (c *Conn[DB]) log(ctx context.Context, op, query string, args *Arguments, dur time.Duration, err error) {
	l := c.opts.logger
	if l == nil {
		return
	}
	level := slog.LevelDebug
	if c.opts.slowQuery > 0 && dur >= c.opts.slowQuery {
		level = slog.LevelWarn
	}
	if !l.Enabled(ctx, level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("backend", c.backend.Name()),
		slog.String("op", op),
		slog.String("sql", truncateSQL(query, c.opts.maxSQLLen)),
	}
	if c.opts.logArgs {
		attrs = append(attrs, slog.String("args", formatArgs(args.Values())))
	} else {
		attrs = append(attrs, slog.Int("argc", args.Len()))
	}
	attrs = append(attrs, slog.Duration("dur", dur))
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	msg := "sqlq: statement"
	if level == slog.LevelWarn {
		msg = "sqlq: slow statement"
	}
	l.LogAttrs(ctx, level, msg, attrs...)
}

func truncateSQL(sql string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLoggedSQL
	}
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen] + "…"
}

// formatArgs renders arguments for logs. Strings and bytes are reduced to
// their length; long values are cut.
func formatArgs(args []any) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < len(args) && i < maxLoggedArgs; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatArg(args[i]))
		if b.Len() > maxLoggedArgsLen {
			b.WriteString("…")
			break
		}
	}
	if len(args) > maxLoggedArgs {
		b.WriteString(", …")
	}
	b.WriteByte(']')
	return b.String()
}

func formatArg(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("redacted(len=%d)", len(x))
	case []byte:
		return fmt.Sprintf("bytes(len=%d)", len(x))
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		s := fmt.Sprintf("%T", v)
		if len(s) > maxLoggedScalarWidth {
			s = s[:maxLoggedScalarWidth] + "…"
		}
		return s
	}
}
