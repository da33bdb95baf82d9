package sqlq

import (
	"database/sql"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"sync"
)

// Mapper decodes rows into output types that do not implement [RowDecoder].
//
// The first row of a given (type, column set) pair builds a plan: for every
// column, where its value goes and whether it needs converting. Plans and
// per-type field tables are cached, so later rows only allocate the scan
// destinations.
//
// Mapping rules:
//   - sql.Scanner types and time.Time take a single column whole.
//   - Struct fields bind by `db:"name"`, otherwise by case-insensitive field
//     name. `db:"-"` skips a field.
//   - Nested structs are flattened with `db:",inline"` or by embedding.
//     Nil pointers on the way are allocated.
//   - Any other type takes a single column.
//   - Extra columns are ignored; missing columns leave zero values.
//   - Pointer fields receive nil for NULL.
type Mapper struct {
	plans  sync.Map // planKey -> *scanPlan
	fields sync.Map // reflect.Type -> fieldMap
}

func NewMapper() *Mapper { return &Mapper{} }

var (
	defaultMapper     *Mapper
	defaultMapperOnce sync.Once
)

func getMapper() *Mapper {
	defaultMapperOnce.Do(func() { defaultMapper = NewMapper() })
	return defaultMapper
}

// decodeRow turns the current row into a T. *T implementing RowDecoder wins;
// everything else goes through m. Failures come back as *DecodeError.
func decodeRow[T any](m *Mapper, rs RowScanner) (T, error) {
	var out T
	if d, ok := any(&out).(RowDecoder); ok {
		if err := d.DecodeRow(rs); err != nil {
			var zero T
			return zero, &DecodeError{Type: reflect.TypeOf(&out).Elem(), Err: err}
		}
		return out, nil
	}
	v, err := scanWithMapper[T](m, rs)
	if err != nil {
		return v, &DecodeError{Type: reflect.TypeOf(&out).Elem(), Err: err}
	}
	return v, nil
}

// scanWithMapper scans the current row into T using m's caches.
func scanWithMapper[T any](m *Mapper, rs RowScanner) (T, error) {
	var zero T

	cols, err := rs.Columns()
	if err != nil {
		return zero, err
	}
	if len(cols) == 0 {
		return zero, fmt.Errorf("sqlq: query returned zero columns")
	}

	names := make([]string, len(cols))
	h := fnv.New64a()
	for i, c := range cols {
		names[i] = normalizeColAscii(c)
		_, _ = h.Write([]byte(names[i]))
		_, _ = h.Write([]byte{0})
	}

	rt := reflect.TypeOf((*T)(nil)).Elem()
	p, err := m.getPlan(rt, names, h.Sum64())
	if err != nil {
		return zero, err
	}

	out := reflect.New(rt)
	dests, finish := p.bind(out.Elem())
	if err := rs.Scan(dests...); err != nil {
		return zero, err
	}
	if err := finish(); err != nil {
		return zero, err
	}
	return out.Elem().Interface().(T), nil
}

// ---------------- plans ----------------

type planKey struct {
	rt    reflect.Type
	hash  uint64 // FNV-1a over the normalized column names
	ncols int
}

// scanPlan holds one step per result column.
type scanPlan struct {
	steps []colStep
}

type stepKind uint8

const (
	stepSkip    stepKind = iota // column has no destination
	stepDirect                  // database/sql scans straight into the target
	stepConvert                 // scan into a temporary, then assign
)

type colStep struct {
	kind   stepKind
	path   []int // field index path; nil addresses the whole value
	scanAs reflect.Type
	assign func(dst, src reflect.Value) error
}

func (m *Mapper) getPlan(rt reflect.Type, cols []string, hash uint64) (*scanPlan, error) {
	key := planKey{rt: rt, hash: hash, ncols: len(cols)}
	if v, ok := m.plans.Load(key); ok {
		return v.(*scanPlan), nil
	}

	p := &scanPlan{steps: make([]colStep, len(cols))}
	switch {
	case takesWholeColumn(rt):
		if len(cols) != 1 {
			return nil, fmt.Errorf("sqlq: scanning %s requires exactly 1 column; got %d", rt, len(cols))
		}
		p.steps[0] = stepFor(rt, nil)
	case derefPtr(rt).Kind() == reflect.Struct:
		fields := m.structIndex(rt)
		for i, c := range cols {
			path, ok := fields[c]
			if !ok {
				continue // zero value is stepSkip
			}
			p.steps[i] = stepFor(fieldTypeByPath(rt, path), path)
		}
	default:
		if len(cols) != 1 {
			return nil, fmt.Errorf("sqlq: cannot map %d columns into %s; use a struct", len(cols), rt)
		}
		p.steps[0] = stepFor(rt, nil)
	}

	m.plans.Store(key, p)
	return p, nil
}

// stepFor picks how a value of type t at path is scanned.
func stepFor(t reflect.Type, path []int) colStep {
	if implementsScanner(t) {
		return colStep{kind: stepDirect, path: path}
	}
	if scanAs, assign, ok := pickIndirect(t); ok {
		return colStep{kind: stepConvert, path: path, scanAs: scanAs, assign: assign}
	}
	return colStep{kind: stepDirect, path: path}
}

// bind allocates scan destinations for one row rooted at root. finish
// assigns converted values once Scan has run.
func (p *scanPlan) bind(root reflect.Value) ([]any, func() error) {
	dests := make([]any, len(p.steps))
	var (
		sink    sql.RawBytes
		pending []func() error
	)
	for i, st := range p.steps {
		switch st.kind {
		case stepDirect:
			dests[i] = fieldByPathAlloc(root, st.path).Addr().Interface()
		case stepConvert:
			tmp := reflect.New(st.scanAs)
			dests[i] = tmp.Interface()
			path, assign := st.path, st.assign
			pending = append(pending, func() error {
				return assign(fieldByPathAlloc(root, path), tmp.Elem())
			})
		default:
			dests[i] = &sink
		}
	}
	return dests, func() error {
		for _, f := range pending {
			if err := f(); err != nil {
				return err
			}
		}
		return nil
	}
}

// ---------------- struct fields ----------------

// fieldMap maps a lower-case column name to a field index path.
type fieldMap map[string][]int

func (m *Mapper) structIndex(rt reflect.Type) fieldMap {
	if v, ok := m.fields.Load(rt); ok {
		return v.(fieldMap)
	}
	fm := buildStructIndex(rt)
	m.fields.Store(rt, fm)
	return fm
}

// buildStructIndex walks rt's exported fields depth-first. When two fields
// claim the same name the first one found keeps it.
func buildStructIndex(rt reflect.Type) fieldMap {
	fm := make(fieldMap)
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		t = derefPtr(t)
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() && !sf.Anonymous {
				continue
			}
			tag := sf.Tag.Get("db")
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			path := append(append([]int(nil), prefix...), i)
			flatten := inline || (sf.Anonymous && tag == "")
			if flatten && derefPtr(sf.Type).Kind() == reflect.Struct && !takesWholeColumn(sf.Type) {
				walk(sf.Type, path)
				continue
			}
			if !sf.IsExported() {
				continue
			}
			if name == "" {
				name = sf.Name
			}
			key := toLowerAscii(name)
			if _, taken := fm[key]; !taken {
				fm[key] = path
			}
		}
	}
	walk(rt, nil)
	return fm
}

// parseTag reads a `db` tag: "-", "col", ",inline", "col,inline" or
// "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "inline":
			inline = true
		case part != "" && name == "":
			name = part
		}
	}
	return name, inline, false
}

func fieldTypeByPath(root reflect.Type, path []int) reflect.Type {
	t := root
	for _, i := range path {
		t = derefPtr(t).Field(i).Type
	}
	return t
}

// fieldByPathAlloc walks path from v, allocating nil pointers so that the
// value it returns is addressable and non-nil.
func fieldByPathAlloc(v reflect.Value, path []int) reflect.Value {
	for _, i := range path {
		v = allocPtr(v).Field(i)
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		v.Set(reflect.New(v.Type().Elem()))
	}
	return v
}

func allocPtr(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Pointer {
		return v
	}
	if v.IsNil() {
		v.Set(reflect.New(v.Type().Elem()))
	}
	return v.Elem()
}

// ---------------- type helpers ----------------

var scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func implementsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// takesWholeColumn reports struct-shaped types that still map one column.
func takesWholeColumn(t reflect.Type) bool {
	return implementsScanner(t) || derefPtr(t) == timeType
}

// pickIndirect returns a temporary type to scan into and a function that
// assigns the temporary to a destination of type t. It covers the builtin
// string (scanned as []byte), numeric kinds of any width (scanned at 64
// bits), named types over those, and pointers to any of them. For pointer
// types the temporary is a pointer too, so NULL assigns nil.
func pickIndirect(t reflect.Type) (reflect.Type, func(dst, src reflect.Value) error, bool) {
	if t == stringType {
		return bytesType, func(dst, src reflect.Value) error {
			if src.IsNil() {
				return errNullInto(t)
			}
			dst.SetString(string(src.Bytes()))
			return nil
		}, true
	}

	base, depth := t, 0
	for base.Kind() == reflect.Pointer {
		base, depth = base.Elem(), depth+1
	}

	var (
		scanAs reflect.Type
		set    func(v, src reflect.Value) error
	)
	switch base.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		scanAs, set = int64Type, func(v, src reflect.Value) error {
			if n := src.Int(); v.OverflowInt(n) {
				return errOutOfRange(n, base)
			}
			v.SetInt(src.Int())
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		scanAs, set = uint64Type, func(v, src reflect.Value) error {
			if n := src.Uint(); v.OverflowUint(n) {
				return errOutOfRange(n, base)
			}
			v.SetUint(src.Uint())
			return nil
		}
	case reflect.Float32, reflect.Float64:
		scanAs, set = float64Type, func(v, src reflect.Value) error {
			if f := src.Float(); v.OverflowFloat(f) {
				return errOutOfRange(f, base)
			}
			v.SetFloat(src.Float())
			return nil
		}
	case reflect.String:
		scanAs, set = stringType, func(v, src reflect.Value) error {
			v.SetString(src.String())
			return nil
		}
	default:
		return nil, nil, false
	}

	if depth == 0 {
		return scanAs, set, true
	}
	return reflect.PointerTo(scanAs), func(dst, src reflect.Value) error {
		if src.IsNil() {
			dst.Set(reflect.Zero(t))
			return nil
		}
		v := reflect.New(base).Elem()
		if err := set(v, src.Elem()); err != nil {
			return err
		}
		dst.Set(addPointers(v, depth).Convert(t))
		return nil
	}, true
}

func errOutOfRange(v any, t reflect.Type) error {
	return fmt.Errorf("sqlq: value %v out of range for %s", v, t)
}

func errNullInto(t reflect.Type) error {
	return fmt.Errorf("sqlq: cannot scan NULL into %s; use a pointer or sql.Null type", t)
}

var (
	stringType  = reflect.TypeOf("")
	bytesType   = reflect.TypeOf([]byte(nil))
	int64Type   = reflect.TypeOf(int64(0))
	uint64Type  = reflect.TypeOf(uint64(0))
	float64Type = reflect.TypeOf(float64(0))
)

// addPointers wraps an addressable v in n pointer layers.
func addPointers(v reflect.Value, n int) reflect.Value {
	cur := v.Addr()
	for ; n > 1; n-- {
		p := reflect.New(cur.Type())
		p.Elem().Set(cur)
		cur = p
	}
	return cur
}

// ---------------- column names ----------------

// normalizeColAscii strips one pair of identifier quotes ("", ``, [])
// and lower-cases ASCII letters.
func normalizeColAscii(s string) string {
	if n := len(s); n >= 2 {
		switch first, last := s[0], s[n-1]; {
		case first == '"' && last == '"',
			first == '`' && last == '`',
			first == '[' && last == ']':
			s = s[1 : n-1]
		}
	}
	return toLowerAscii(s)
}

func toLowerAscii(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return 'A' <= r && r <= 'Z' })
	if i < 0 {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if c := b[i]; 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
