package sqlq

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNilParams is returned when named binding gets a nil map or a nil
// pointer instead of its parameters.
var ErrNilParams = errors.New("sqlq: named bind: nil params")

// ErrUnsupportedArg is returned when named parameters are neither a struct
// nor a map with string keys.
var ErrUnsupportedArg = errors.New("sqlq: named bind: params must be struct or map[string]any")

// ErrDuplicateKeyTag is returned when two struct fields, embedded ones
// included, resolve to the same case-insensitive parameter name.
var ErrDuplicateKeyTag = errors.New("sqlq: named bind: duplicate key from struct tags/fields")

// Rebind rewrites query for placeholder style ph.
//
// With exactly one struct or map[string]any argument, :name parameters are
// resolved first. Slices and arrays expand to comma-separated lists, an
// empty one becomes NULL, and []byte or driver.Valuer values stay scalar:
//
//	q, args, err := sqlq.Rebind(
//	    `SELECT * FROM users WHERE status = :status AND id IN (:ids)`,
//	    sqlq.PlaceholderDollar,
//	    map[string]any{"status": "active", "ids": []int{1, 2, 3}},
//	)
//	// q    = SELECT * FROM users WHERE status = $1 AND id IN ($2,$3,$4)
//	// args = ["active", 1, 2, 3]
//
// Any other arguments are taken as positional and returned unchanged; only
// the ? placeholders are renumbered. Quoted text, comments and
// dollar-quoted blocks are left alone.
func Rebind(query string, ph Placeholder, params ...any) (string, []any, error) {
	return lexer{ph: ph, Syntax: Syntax{DollarQuotes: true}}.rebind(query, params...)
}

func (lx lexer) rebind(query string, params ...any) (string, []any, error) {
	if len(params) != 1 || !looksBindable(params[0]) {
		return lx.rewritePlaceholders(query), params, nil
	}
	positional, args, err := lx.bindNamedParams(query, params[0])
	if err != nil {
		return "", nil, err
	}
	return lx.rewritePlaceholders(positional), args, nil
}

// Named builds a query from SQL with :named parameters.
//
// params must be a struct (fields by `db` tag or name, embedded structs
// flattened) or a map[string]any. Each :name outside quotes, comments and
// dollar-quoted blocks becomes a positional placeholder in the backend's
// style and its value is bound in order, so the backend's type checks still
// apply. Slices expand to lists and an empty slice becomes NULL:
//
//	q := sqlq.Named[sqlq.Postgres](
//	    `SELECT id, email FROM users WHERE status = :status AND id IN (:ids)`,
//	    map[string]any{"status": "active", "ids": []int64{1, 2, 3}},
//	)
//	// SQL: ... WHERE status = $1 AND id IN ($2,$3,$4)
//
// Errors (missing names, bad params) are reported by the terminal operation.
func Named[DB Backend](query string, params any) *Query[DB, Row] {
	var b DB
	if params == nil {
		return failed[DB, Row](query, ErrNilParams)
	}
	if !looksBindable(params) {
		if rv := reflect.ValueOf(params); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return failed[DB, Row](query, ErrNilParams)
		}
		return failed[DB, Row](query, ErrUnsupportedArg)
	}
	bound, args, err := lexerFor(b).rebind(query, params)
	if err != nil {
		return failed[DB, Row](query, err)
	}
	q := New[DB](bound)
	for _, v := range args {
		q.Bind(v)
	}
	return q
}

// looksBindable reports whether v is a struct or string-keyed map, behind
// any number of non-nil pointers.
func looksBindable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return true
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	}
	return false
}

type nameToken struct {
	name       string
	start, end int
}

// bindNamedParams replaces every :name with ? (or a list of them) and
// returns the values in placeholder order.
func (lx lexer) bindNamedParams(query string, params any) (string, []any, error) {
	if params == nil {
		return "", nil, ErrNilParams
	}
	toks, err := lx.findNamedParams(query)
	if err != nil {
		return "", nil, err
	}
	if len(toks) == 0 {
		return query, nil, nil
	}
	names, err := buildNameTable(params)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.Grow(len(query))
	args := make([]any, 0, len(toks))
	last := 0
	for _, t := range toks {
		b.WriteString(query[last:t.start])
		last = t.end

		val, ok := names.get(t.name)
		if !ok {
			return "", nil, fmt.Errorf("sqlq: named bind: missing value for :%s", t.name)
		}
		rv := reflect.ValueOf(val)
		if !expands(rv) {
			b.WriteByte('?')
			args = append(args, val)
			continue
		}
		if rv.Len() == 0 {
			b.WriteString("NULL")
			continue
		}
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('?')
			args = append(args, rv.Index(i).Interface())
		}
	}
	b.WriteString(query[last:])
	return b.String(), args, nil
}

// expands reports whether a named value becomes a list of placeholders.
func expands(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return false
		}
	case reflect.Array:
	default:
		return false
	}
	_, valuer := v.Interface().(driver.Valuer)
	return !valuer
}

// ---------------- SQL scanning ----------------

// lexer scans SQL text with one backend's placeholder style and syntax.
type lexer struct {
	Syntax
	ph Placeholder
}

func lexerFor(b Backend) lexer { return lexer{Syntax: b.Syntax(), ph: b.Placeholder()} }

// findNamedParams returns the :name tokens of query in order. "::" casts and
// :1 style positional markers are not names.
func (lx lexer) findNamedParams(query string) ([]nameToken, error) {
	var out []nameToken
	for i := 0; i < len(query); {
		j, skipped, err := lx.skipNonCode(query, i)
		if err != nil {
			return nil, err
		}
		if skipped {
			i = j
			continue
		}
		if query[i] == ':' {
			if hasPrefix(query[i:], "::") {
				i += 2
				continue
			}
			if name, end := parseIdent(query, i+1); name != "" {
				out = append(out, nameToken{name: name, start: i, end: end})
				i = end
				continue
			}
		}
		i++
	}
	return out, nil
}

// rewritePlaceholders renumbers bare ? placeholders into the lexer's style.
// Text it cannot scan (an unterminated quote) is copied as is.
func (lx lexer) rewritePlaceholders(query string) string {
	if lx.ph == PlaceholderQuestion {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); {
		j, skipped, err := lx.skipNonCode(query, i)
		if err != nil {
			b.WriteString(query[i:])
			break
		}
		if skipped {
			b.WriteString(query[i:j])
			i = j
			continue
		}
		if query[i] == '?' {
			n++
			b.WriteString(lx.ph.Nth(n))
		} else {
			b.WriteByte(query[i])
		}
		i++
	}
	return b.String()
}

// countPlaceholders returns how many positional arguments query expects.
// Numbered placeholders ($3, @p3, :3, ?3) raise the count to their index, a
// bare ? takes the next index, and with NamedParams each distinct :name,
// @name or $name takes the next index the first time it appears.
func (lx lexer) countPlaceholders(query string) (int, error) {
	var (
		top    int
		prefix = lx.ph.prefix()
		seen   map[string]bool
	)
	for i := 0; i < len(query); {
		j, skipped, err := lx.skipNonCode(query, i)
		if err != nil {
			return 0, err
		}
		if skipped {
			i = j
			continue
		}
		if hasPrefix(query[i:], "::") {
			i += 2
			continue
		}
		if hasPrefix(query[i:], prefix) {
			at := i + len(prefix)
			if n, end := parseNumber(query, at); end > at {
				top = max(top, n)
				i = end
				continue
			}
			if lx.ph == PlaceholderQuestion {
				top++
				i++
				continue
			}
		}
		if lx.NamedParams && strings.IndexByte(":@$", query[i]) >= 0 {
			if name, end := parseIdent(query, i+1); name != "" {
				if key := query[i:end]; !seen[key] {
					if seen == nil {
						seen = make(map[string]bool)
					}
					seen[key] = true
					top++
				}
				i = end
				continue
			}
		}
		i++
	}
	return top, nil
}

// Nth returns the n-th (1-based) placeholder in style p.
func (p Placeholder) Nth(n int) string {
	if p == PlaceholderQuestion {
		return "?"
	}
	return p.prefix() + strconv.Itoa(n)
}

func (p Placeholder) prefix() string {
	switch p {
	case PlaceholderDollar:
		return "$"
	case PlaceholderAtP:
		return "@p"
	case PlaceholderColonNum:
		return ":"
	}
	return "?"
}

// skipNonCode reports whether a string literal, quoted identifier, comment
// or dollar-quoted block starts at i, and if so where it ends.
func (lx lexer) skipNonCode(s string, i int) (int, bool, error) {
	switch s[i] {
	case '\'':
		j, err := skipQuoted(s, i+1, '\'', lx.BackslashEscapes || lx.EscapeStrings && isEscapeString(s, i))
		return j, true, err
	case '"':
		j, err := skipQuoted(s, i+1, '"', lx.BackslashEscapes)
		return j, true, err
	case '`':
		j, err := skipQuoted(s, i+1, '`', false)
		return j, true, err
	case '-':
		if hasPrefix(s[i:], "--") {
			return skipLineComment(s, i+2), true, nil
		}
	case '#':
		if lx.HashComments {
			return skipLineComment(s, i+1), true, nil
		}
	case '/':
		if hasPrefix(s[i:], "/*") {
			j, err := skipBlockComment(s, i+2)
			return j, true, err
		}
	case '$':
		if lx.DollarQuotes {
			if j, ok, err := skipDollarQuoted(s, i); ok {
				return j, true, err
			}
		}
	}
	return i, false, nil
}

var quoteNames = map[byte]string{
	'\'': "single-quoted string",
	'"':  "double-quoted identifier",
	'`':  "backtick-quoted identifier",
}

// skipQuoted returns the index after the closing quote q, starting inside
// the quoted text. A doubled quote is an escaped one, and so is \q when
// backslash is set.
func skipQuoted(s string, i int, q byte, backslash bool) (int, error) {
	for i < len(s) {
		switch {
		case backslash && s[i] == '\\':
			i += 2
		case s[i] != q:
			i++
		case i+1 < len(s) && s[i+1] == q:
			i += 2
		default:
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("sqlq: unterminated %s", quoteNames[q])
}

func skipLineComment(s string, i int) int {
	if k := strings.IndexByte(s[i:], '\n'); k >= 0 {
		return i + k + 1
	}
	return len(s)
}

func skipBlockComment(s string, i int) (int, error) {
	if k := strings.Index(s[i:], "*/"); k >= 0 {
		return i + k + 2, nil
	}
	return 0, errors.New("sqlq: unterminated block comment")
}

// skipDollarQuoted handles PostgreSQL $$...$$ and $tag$...$tag$ blocks. ok
// is false when the $ at i does not open one ($1 never does).
func skipDollarQuoted(s string, i int) (end int, ok bool, err error) {
	j := i + 1
	if j < len(s) && isTagStart(s[j]) {
		for j++; j < len(s) && (isTagStart(s[j]) || isDigit(s[j])); j++ {
		}
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false, nil
	}
	tag := s[i : j+1]
	k := strings.Index(s[j+1:], tag)
	if k < 0 {
		return 0, true, errors.New("sqlq: unterminated dollar-quoted string")
	}
	return j + 1 + k + len(tag), true, nil
}

// isEscapeString reports whether the quote at i opens a PostgreSQL E'...'
// literal.
func isEscapeString(s string, i int) bool {
	if i == 0 || s[i-1] != 'E' && s[i-1] != 'e' {
		return false
	}
	return i == 1 || !isTagStart(s[i-2]) && !isDigit(s[i-2])
}

func isTagStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c >= utf8.RuneSelf
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func hasPrefix(s, p string) bool { return strings.HasPrefix(s, p) }

// parseIdent reads a parameter name at i: a letter or underscore followed
// by letters, digits and underscores.
func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if r != '_' && !unicode.IsLetter(r) && (i == start || !unicode.IsDigit(r)) {
			break
		}
		i += w
	}
	return s[start:i], i
}

// parseNumber reads ASCII digits at i and returns their value and the index
// after them; end == i means there were none.
func parseNumber(s string, i int) (n int, end int) {
	end = i
	for end < len(s) && isDigit(s[end]) {
		end++
	}
	if end == i {
		return 0, i
	}
	n, err := strconv.Atoi(s[i:end])
	if err != nil {
		return 0, i
	}
	return n, end
}

// ---------------- parameter values ----------------

// nameTable holds named parameter values under lower-case keys.
type nameTable map[string]any

func (t nameTable) get(name string) (any, bool) {
	v, ok := t[strings.ToLower(name)]
	return v, ok
}

func buildNameTable(params any) (nameTable, error) {
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrNilParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrUnsupportedArg
		}
		t := make(nameTable, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			t[strings.ToLower(it.Key().String())] = it.Value().Interface()
		}
		return t, nil
	case reflect.Struct:
		t := make(nameTable)
		if err := t.addFields(rv); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, ErrUnsupportedArg
}

// addFields adds v's exported fields by `db` tag or name. Embedded structs
// are flattened unless they sit behind a nil pointer.
func (t nameTable) addFields(v reflect.Value) error {
	rt := v.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		fv := v.Field(i)
		if f.Anonymous {
			if ev, ok := embeddedStruct(fv); ok {
				if err := t.addFields(ev); err != nil {
					return err
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		name, _, omit := parseTag(f.Tag.Get("db"))
		if omit {
			continue
		}
		if name == "" {
			name = f.Name
		}
		key := strings.ToLower(name)
		if _, dup := t[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKeyTag, key)
		}
		t[key] = fv.Interface()
	}
	return nil
}

func embeddedStruct(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.Kind() == reflect.Struct
}
