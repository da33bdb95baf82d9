package sqlq

import (
	"context"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reDollarToken = regexp.MustCompile(`\$\d+`)

type tenantScope struct {
	Tenant int `db:"tenant"`
}

type userFilter struct {
	tenantScope
	Status string    `db:"status"`
	IDs    []int64   `db:"ids"`
	Since  time.Time `db:"since"`
	Skip   string    `db:"-"`
}

func TestNamed_PostgresStruct(t *testing.T) {
	f := userFilter{
		tenantScope: tenantScope{Tenant: 42},
		Status:      "active",
		IDs:         []int64{7, 8, 9},
		Since:       time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	q := Named[Postgres](`SELECT id FROM users
WHERE tenant = :tenant AND status = :status
  AND id IN (:ids) AND created_at >= :since
-- :in_comment
/* :in_block */`, f)
	require.NoError(t, q.Err())

	assert.Contains(t, q.SQL(), "tenant = $1 AND status = $2")
	assert.Contains(t, q.SQL(), "id IN ($3,$4,$5) AND created_at >= $6")
	assert.Contains(t, q.SQL(), "-- :in_comment")
	assert.Equal(t, []any{42, "active", int64(7), int64(8), int64(9), f.Since}, q.Arguments().Values())
	assert.Equal(t, []string{"bigint", "text", "bigint", "bigint", "bigint", "timestamptz"}, q.Arguments().Types())
}

func TestNamed_SQLiteMapExecutes(t *testing.T) {
	e := &memExecutor[SQLite]{affected: 3}
	n, err := Named[SQLite](`UPDATE t SET v = :v WHERE id IN (:ids) AND flag = :v`,
		map[string]any{"v": 1, "ids": []int{7, 8}}).
		Execute(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	assert.Equal(t, "UPDATE t SET v = ? WHERE id IN (?,?) AND flag = ?", e.lastQuery)
	assert.Equal(t, []any{1, 7, 8, 1}, e.lastArgs)
}

func TestNamed_EmptySliceBecomesNull(t *testing.T) {
	q := Named[MySQL](`SELECT 1 WHERE s = :s AND id IN (:ids)`, map[string]any{"s": "x", "ids": []int{}})
	require.NoError(t, q.Err())
	assert.Equal(t, `SELECT 1 WHERE s = ? AND id IN (NULL)`, q.SQL())
	assert.Equal(t, 1, q.Arguments().Len())
}

func TestNamed_Errors(t *testing.T) {
	ctx := context.Background()
	var nilFilter *userFilter

	tests := []struct {
		name   string
		params any
		query  string
		want   error
	}{
		{"nil", nil, `SELECT :a`, ErrNilParams},
		{"nil pointer", nilFilter, `SELECT :a`, ErrNilParams},
		{"scalar", 5, `SELECT :a`, ErrUnsupportedArg},
		{"int keys", map[int]any{1: 2}, `SELECT :a`, ErrUnsupportedArg},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &memExecutor[Postgres]{}
			_, err := Named[Postgres](tc.query, tc.params).Execute(ctx, e)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, e.calls)
		})
	}

	t.Run("missing name", func(t *testing.T) {
		_, err := Named[Postgres](`SELECT :a, :b`, map[string]any{"a": 1}).Execute(ctx, &memExecutor[Postgres]{})
		assert.EqualError(t, err, "sqlq: named bind: missing value for :b")
	})

	t.Run("unsupported value", func(t *testing.T) {
		_, err := Named[MySQL](`SELECT :a`, map[string]any{"a": []string{"x"}}).Execute(ctx, &memExecutor[MySQL]{})
		assert.NoError(t, err, "slices expand to scalars")

		_, err = Named[Postgres](`SELECT :a`, map[string]any{"a": uint64(1)}).Execute(ctx, &memExecutor[Postgres]{})
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestRebind_BytesAndArray(t *testing.T) {
	blob := []byte("hi")
	out, args, err := Rebind(`SELECT 1 WHERE b=:b AND n IN (:nums)`, PlaceholderDollar,
		map[string]any{"b": blob, "nums": [2]int{5, 6}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT 1 WHERE b=$1 AND n IN ($2,$3)`, out)
	assert.Equal(t, []any{blob, 5, 6}, args)
}

func TestRebind_RepeatedNames(t *testing.T) {
	type P struct {
		X   int   `db:"x"`
		Arr []int `db:"arr"`
	}
	out, args, err := Rebind(`WHERE a=:x OR b=:x OR c IN (:arr) OR d=:x`, PlaceholderDollar, P{X: 9, Arr: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, `WHERE a=$1 OR b=$2 OR c IN ($3) OR d=$4`, out)
	assert.Equal(t, []any{9, 9, 1, 9}, args)
}

func TestRebind_PositionalPassthrough(t *testing.T) {
	out, args, err := Rebind(`SELECT * FROM t WHERE a=? AND b IN (?,?) -- ? in comment`, PlaceholderColonNum, "aa", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a=:1 AND b IN (:2,:3) -- ? in comment", out)
	assert.Equal(t, []any{"aa", 2, 3}, args)

	in := "SELECT ? AS x, '--' AS y"
	out, args, err = Rebind(in, PlaceholderQuestion)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, args)
}

func TestRewritePlaceholders_SkipsQuotedText(t *testing.T) {
	tests := map[string]string{
		"strings and comments": "SELECT '?', $$ ? $$, $z$ ? $z$, -- ? line\n/* ? block */ ? AS bind",
		"double quoted":        `SELECT "a ? "" b", ? AS bind`,
		"backticks":            "SELECT `c ? `` d`, ? AS bind",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			got := lexerFor(Postgres{}).rewritePlaceholders(in)
			assert.Len(t, reDollarToken.FindAllString(got, -1), 1, got)
			assert.Contains(t, got, "$1 AS bind")
		})
	}
}

func TestRewritePlaceholders_TwoDigitNumbers(t *testing.T) {
	got := lexer{ph: PlaceholderAtP}.rewritePlaceholders("?" + strings.Repeat(",?", 11))
	for i := 1; i <= 12; i++ {
		assert.Contains(t, got, "@p"+strconv.Itoa(i))
	}
}

func TestFindNamedParams_Order(t *testing.T) {
	in := "-- :skip\n/* :also_skip */\nSELECT ':no', \":no\", `:no`,\n$tag$ :no $tag$,\n:ok1, :ok_2, ::int, :x9, :_lead, :n1\n"
	toks, err := lexerFor(Postgres{}).findNamedParams(in)
	require.NoError(t, err)

	var names []string
	for _, tk := range toks {
		names = append(names, tk.name)
		assert.Equal(t, ":"+tk.name, in[tk.start:tk.end])
	}
	assert.Equal(t, []string{"ok1", "ok_2", "x9", "_lead", "n1"}, names)
}

func TestFindNamedParams_Unterminated(t *testing.T) {
	for _, in := range []string{"'abc", `"abc`, "`abc", "/* abc", "$tag$ abc"} {
		_, err := lexerFor(Postgres{}).findNamedParams(in)
		assert.Error(t, err, in)
	}
}

func TestBuildNameTable(t *testing.T) {
	type Inner struct {
		A int `db:"a"`
	}
	type Outer struct {
		*Inner
		B string `db:"b"`
		C string `db:"-"`
		d int
	}

	names, err := buildNameTable(Outer{Inner: &Inner{A: 10}, B: "bee", C: "skip", d: 1})
	require.NoError(t, err)
	v, ok := names.get("A")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	v, ok = names.get("b")
	assert.True(t, ok)
	assert.Equal(t, "bee", v)
	_, ok = names.get("c")
	assert.False(t, ok)
	_, ok = names.get("d")
	assert.False(t, ok)

	names, err = buildNameTable(Outer{B: "nil embed"})
	require.NoError(t, err)
	_, ok = names.get("a")
	assert.False(t, ok)

	names, err = buildNameTable(map[string]any{"X": 1})
	require.NoError(t, err)
	v, ok = names.get("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBuildNameTable_Errors(t *testing.T) {
	var p *struct{ A int }
	_, err := buildNameTable(p)
	assert.ErrorIs(t, err, ErrNilParams)

	_, err = buildNameTable(map[int]any{1: 2})
	assert.ErrorIs(t, err, ErrUnsupportedArg)

	_, err = buildNameTable(123)
	assert.ErrorIs(t, err, ErrUnsupportedArg)

	type Dup struct {
		A int `db:"name"`
		B int `db:"NAME"`
	}
	_, err = buildNameTable(Dup{})
	assert.ErrorIs(t, err, ErrDuplicateKeyTag)
}

func TestLooksBindable(t *testing.T) {
	type S struct{ X int }
	var nilPtr *S
	assert.False(t, looksBindable(nilPtr))
	assert.True(t, looksBindable(S{}))
	assert.True(t, looksBindable(&S{}))
	assert.True(t, looksBindable(map[string]any{"a": 1}))
	assert.False(t, looksBindable(map[int]any{1: 2}))
}

func TestSkipQuoted(t *testing.T) {
	for _, in := range []string{"'a''b''c'", `"a""b"`, "`a``b`"} {
		end, err := skipQuoted(in, 1, in[0], false)
		require.NoError(t, err, in)
		assert.Equal(t, len(in), end, in)
	}

	_, err := skipQuoted(`"abc`, 1, '"', false)
	assert.EqualError(t, err, "sqlq: unterminated double-quoted identifier")
	_, err = skipQuoted("`abc", 1, '`', false)
	assert.EqualError(t, err, "sqlq: unterminated backtick-quoted identifier")
}

func TestSkipNonCode(t *testing.T) {
	tests := []struct {
		in      string
		end     int
		skipped bool
	}{
		{"-- c\nSELECT", len("-- c\n"), true},
		{"-- tail", len("-- tail"), true},
		{"/* c */ x", len("/* c */"), true},
		{"$$ a $$ x", len("$$ a $$"), true},
		{"$t1$ $$ $t1$", len("$t1$ $$ $t1$"), true},
		{"$1 + $2", 0, false},
		{"- 1", 0, false},
		{"/ 2", 0, false},
		{"x", 0, false},
	}
	for _, tc := range tests {
		end, skipped, err := lexerFor(Postgres{}).skipNonCode(tc.in, 0)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.skipped, skipped, tc.in)
		assert.Equal(t, tc.end, end, tc.in)
	}

	_, _, err := lexerFor(Postgres{}).skipNonCode("/* x", 0)
	assert.EqualError(t, err, "sqlq: unterminated block comment")
	_, skipped, err := lexerFor(Postgres{}).skipNonCode("$tag$ no end", 0)
	assert.True(t, skipped)
	assert.EqualError(t, err, "sqlq: unterminated dollar-quoted string")
}

func TestFindNamedParams_PositionalIsNotAName(t *testing.T) {
	toks, err := lexerFor(Postgres{}).findNamedParams("SELECT :1, :2 WHERE x = :x")
	require.NoError(t, err)
	require.Len(t, toks, 1)
	assert.Equal(t, "x", toks[0].name)
}

func TestExpands(t *testing.T) {
	assert.True(t, expands(reflect.ValueOf([]int{1})))
	assert.True(t, expands(reflect.ValueOf([2]int{1, 2})))
	assert.False(t, expands(reflect.ValueOf([]byte{1})))
	assert.False(t, expands(reflect.ValueOf(pq.Int64Array{1, 2})))
	assert.False(t, expands(reflect.ValueOf("abc")))
	assert.False(t, expands(reflect.Value{}))
}

func TestRebind_ValuerSliceStaysScalar(t *testing.T) {
	out, args, err := Rebind(`SELECT * FROM t WHERE id = ANY(:ids)`, PlaceholderDollar,
		map[string]any{"ids": pq.Int64Array{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM t WHERE id = ANY($1)`, out)
	assert.Equal(t, []any{pq.Int64Array{1, 2}}, args)
}

func TestPlaceholder_Nth(t *testing.T) {
	assert.Equal(t, "?", PlaceholderQuestion.Nth(3))
	assert.Equal(t, "$3", PlaceholderDollar.Nth(3))
	assert.Equal(t, "@p3", PlaceholderAtP.Nth(3))
	assert.Equal(t, ":3", PlaceholderColonNum.Nth(3))
}

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ph    Placeholder
		want  int
	}{
		{"none", `SELECT 1`, PlaceholderQuestion, 0},
		{"question", `SELECT ? + ?`, PlaceholderQuestion, 2},
		{"question numbered", `SELECT ?2, ?1, ?2`, PlaceholderQuestion, 2},
		{"question in quotes", `SELECT '?', "?", ?`, PlaceholderQuestion, 1},
		{"question in comments", "SELECT ? -- ?\n/* ? */", PlaceholderQuestion, 1},
		{"dollar", `SELECT $1, $2`, PlaceholderDollar, 2},
		{"dollar reused", `SELECT $1 WHERE a = $1 OR b = $3`, PlaceholderDollar, 3},
		{"dollar list", `SELECT 1 WHERE id IN ($1,$2,$3)`, PlaceholderDollar, 3},
		{"dollar quoted", `SELECT $$ $1 $$, $tag$ $2 $tag$, $1`, PlaceholderDollar, 1},
		{"dollar casts", `SELECT $1::int, x::text`, PlaceholderDollar, 1},
		{"dollar ignores question", `SELECT ?`, PlaceholderDollar, 0},
		{"atp", `SELECT @p1, @p2, @name`, PlaceholderAtP, 2},
		{"colon", `SELECT :1, :2, :name, ::int`, PlaceholderColonNum, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := lexer{ph: tc.ph, Syntax: Syntax{DollarQuotes: true}}.countPlaceholders(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestCountPlaceholders_Unterminated(t *testing.T) {
	_, err := lexerFor(SQLite{}).countPlaceholders(`SELECT '?`)
	assert.EqualError(t, err, "sqlq: unterminated single-quoted string")
}

func TestCountPlaceholders_BackendSyntax(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		query   string
		want    int
	}{
		{"mysql backslash quote", MySQL{}, `SELECT 'it\'s ?' FROM t WHERE id = ?`, 1},
		{"mysql backslash in double quotes", MySQL{}, `SELECT "a\"?" , ?`, 1},
		{"mysql escaped backslash", MySQL{}, `SELECT 'a\\', ?`, 1},
		{"mysql hash comment", MySQL{}, "SELECT ? # and ?\nFROM t", 1},
		{"mysql dollar is plain", MySQL{}, `SELECT a$b$c, ?`, 1},
		{"sqlite named", SQLite{}, `SELECT :a, :a, @b, $c`, 3},
		{"sqlite named and question", SQLite{}, `SELECT ?, :a, ?`, 3},
		{"sqlite numbered then named", SQLite{}, `SELECT ?3, :a`, 4},
		{"sqlite named in quotes", SQLite{}, `SELECT ':a', "@b", ?`, 1},
		{"sqlite backslash is literal", SQLite{}, `SELECT 'a\', ?`, 1},
		{"postgres escape string", Postgres{}, `SELECT E'it\'s $2', $1`, 1},
		{"postgres plain string", Postgres{}, `SELECT 'a\', $1`, 1},
		{"postgres identifier ending in e", Postgres{}, `SELECT name'x', $1`, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := lexerFor(tc.backend).countPlaceholders(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}

	_, err := lexerFor(Postgres{}).countPlaceholders(`SELECT 'it\'s', $1`)
	assert.EqualError(t, err, "sqlq: unterminated single-quoted string")
}

func TestArityCheck_BackendSyntax(t *testing.T) {
	ctx := context.Background()

	my := &memExecutor[MySQL]{}
	_, err := New[MySQL](`SELECT 'it\'s' FROM t WHERE id = ?`).Bind(1).Execute(ctx, my)
	require.NoError(t, err)
	assert.Equal(t, 1, my.calls)

	lite := &memExecutor[SQLite]{}
	_, err = New[SQLite](`UPDATE t SET v = :v WHERE id = :id OR parent = :id`).Bind(1).Bind(2).Execute(ctx, lite)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, lite.lastArgs)

	_, err = New[SQLite](`SELECT :a`).Execute(ctx, lite)
	assert.ErrorIs(t, err, ErrArityMismatch)
}

func TestNamed_MySQLBackslashString(t *testing.T) {
	e := &memExecutor[MySQL]{}
	_, err := Named[MySQL](`UPDATE t SET note = 'can\'t :skip' WHERE id = :id`, map[string]any{"id": 5}).
		Execute(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE t SET note = 'can\'t :skip' WHERE id = ?`, e.lastQuery)
	assert.Equal(t, []any{5}, e.lastArgs)
}

func TestParseNumber(t *testing.T) {
	n, end := parseNumber("$12,", 1)
	assert.Equal(t, 12, n)
	assert.Equal(t, 3, end)

	n, end = parseNumber("$x", 1)
	assert.Zero(t, n)
	assert.Equal(t, 1, end)
}
