package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/makolabs/mako/internal/frame"
)

// Value is the tagged-variant runtime representation. The closed set of
// implementations below is the entire universe of things a snippet can hold:
// nothing here wraps a host resource except frameValue, which carries an
// in-memory columnar table, never an open file.
type Value interface {
	typeName() string
}

type noneValue struct{}

type boolValue bool

type intValue int64

type floatValue float64

type strValue string

type listValue struct {
	items []Value
}

type tupleValue struct {
	items []Value
}

// rangeValue is lazy like Python 3's range: iteration and membership never
// materialize the sequence, so `for i in range(10**9)` costs no memory and
// stays interruptible by the step budget.
type rangeValue struct {
	start, stop, step int64
}

type funcValue struct {
	name     string
	params   []param
	defaults []Value // evaluated once at def time, aligned with params
	body     []stmt
	env      *env
}

// builtinFn is the signature for native functions. Builtins receive the
// interpreter so they can reach the request context, output writer, and
// limits; p is the call site for error positions.
type builtinFn func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error)

type builtinValue struct {
	name string
	fn   builtinFn
}

// moduleValue is one entry of the import gate's capability table: a named,
// read-only bag of attributes.
type moduleValue struct {
	name  string
	attrs map[string]Value
}

type frameValue struct {
	f *frame.Frame
}

func (noneValue) typeName() string   { return "NoneType" }
func (boolValue) typeName() string   { return "bool" }
func (intValue) typeName() string    { return "int" }
func (floatValue) typeName() string  { return "float" }
func (strValue) typeName() string    { return "str" }
func (*listValue) typeName() string  { return "list" }
func (*tupleValue) typeName() string { return "tuple" }
func (rangeValue) typeName() string  { return "range" }
func (*funcValue) typeName() string  { return "function" }
func (*builtinValue) typeName() string {
	return "builtin_function_or_method"
}
func (*moduleValue) typeName() string { return "module" }
func (*frameValue) typeName() string  { return "frame" }

// The singletons.
var (
	valNone  = noneValue{}
	valTrue  = boolValue(true)
	valFalse = boolValue(false)
)

func boolOf(b bool) Value {
	if b {
		return valTrue
	}
	return valFalse
}

// ---- dict ----

// dictKey is the comparable, normalized form of a hashable value. Numeric
// keys collapse the way Python's do: True, 1 and 1.0 share a slot.
type dictKey struct {
	kind byte // 'n' none, 'i' int, 'f' float, 's' str
	i    int64
	f    float64
	s    string
}

type dictEntry struct {
	key Value
	val Value
}

// dictValue preserves insertion order so repr and iteration are
// deterministic (Python 3.7 semantics).
type dictValue struct {
	entries map[dictKey]*dictEntry
	order   []dictKey
}

func (*dictValue) typeName() string { return "dict" }

func newDict() *dictValue {
	return &dictValue{entries: map[dictKey]*dictEntry{}}
}

func hashKey(v Value) (dictKey, bool) {
	switch k := v.(type) {
	case noneValue:
		return dictKey{kind: 'n'}, true
	case boolValue:
		if k {
			return dictKey{kind: 'i', i: 1}, true
		}
		return dictKey{kind: 'i', i: 0}, true
	case intValue:
		return dictKey{kind: 'i', i: int64(k)}, true
	case floatValue:
		f := float64(k)
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return dictKey{kind: 'i', i: int64(f)}, true
		}
		return dictKey{kind: 'f', f: f}, true
	case strValue:
		return dictKey{kind: 's', s: string(k)}, true
	default:
		return dictKey{}, false
	}
}

func (d *dictValue) get(key Value) (Value, bool, bool) {
	k, ok := hashKey(key)
	if !ok {
		return nil, false, false
	}
	e, found := d.entries[k]
	if !found {
		return nil, false, true
	}
	return e.val, true, true
}

func (d *dictValue) set(key, val Value) bool {
	k, ok := hashKey(key)
	if !ok {
		return false
	}
	if e, found := d.entries[k]; found {
		e.val = val
		return true
	}
	d.entries[k] = &dictEntry{key: key, val: val}
	d.order = append(d.order, k)
	return true
}

func (d *dictValue) delete(key Value) (bool, bool) {
	k, ok := hashKey(key)
	if !ok {
		return false, false
	}
	if _, found := d.entries[k]; !found {
		return false, true
	}
	delete(d.entries, k)
	for i, o := range d.order {
		if o == k {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true, true
}

func (d *dictValue) len() int { return len(d.entries) }

// items returns entries in insertion order.
func (d *dictValue) items() []*dictEntry {
	out := make([]*dictEntry, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.entries[k])
	}
	return out
}

// ---- range ----

func (r rangeValue) len() int64 {
	if r.step > 0 {
		if r.stop <= r.start {
			return 0
		}
		return (r.stop - r.start + r.step - 1) / r.step
	}
	if r.stop >= r.start {
		return 0
	}
	return (r.start - r.stop - r.step - 1) / (-r.step)
}

func (r rangeValue) at(i int64) int64 { return r.start + i*r.step }

func (r rangeValue) contains(n int64) bool {
	if r.step > 0 {
		return n >= r.start && n < r.stop && (n-r.start)%r.step == 0
	}
	return n <= r.start && n > r.stop && (r.start-n)%(-r.step) == 0
}

// ---- truthiness ----

func truthy(v Value) bool {
	switch t := v.(type) {
	case noneValue:
		return false
	case boolValue:
		return bool(t)
	case intValue:
		return t != 0
	case floatValue:
		return t != 0
	case strValue:
		return len(t) != 0
	case *listValue:
		return len(t.items) != 0
	case *tupleValue:
		return len(t.items) != 0
	case *dictValue:
		return t.len() != 0
	case rangeValue:
		return t.len() != 0
	case *frameValue:
		return t.f.NumRows() != 0
	default:
		return true
	}
}

// ---- numeric coercion ----

// asInt widens bools to ints, mirroring Python's bool-is-an-int arithmetic.
func asInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case intValue:
		return int64(t), true
	case boolValue:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case floatValue:
		return float64(t), true
	case intValue:
		return float64(t), true
	case boolValue:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func isNumber(v Value) bool {
	_, ok := asFloat(v)
	return ok
}

// ---- rendering ----

// floatStr renders a float the way Python's str() does: shortest round-trip
// form, with a trailing ".0" for integral values so 4/2 prints as "2.0".
func floatStr(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	// Go writes 1e+06 where Python writes 1e+06 as well, so exponent forms
	// pass through unchanged.
	return s
}

// pyStr is str(): human text, strings unquoted.
func pyStr(v Value) string {
	switch t := v.(type) {
	case noneValue:
		return "None"
	case boolValue:
		if t {
			return "True"
		}
		return "False"
	case intValue:
		return strconv.FormatInt(int64(t), 10)
	case floatValue:
		return floatStr(float64(t))
	case strValue:
		return string(t)
	default:
		return pyRepr(v)
	}
}

// pyRepr is repr(): strings quoted, containers rendered element-wise.
func pyRepr(v Value) string {
	switch t := v.(type) {
	case strValue:
		return quoteStr(string(t))
	case *listValue:
		return reprSeq("[", t.items, "]")
	case *tupleValue:
		if len(t.items) == 1 {
			return "(" + pyRepr(t.items[0]) + ",)"
		}
		return reprSeq("(", t.items, ")")
	case *dictValue:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, e := range t.items() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(pyRepr(e.key))
			sb.WriteString(": ")
			sb.WriteString(pyRepr(e.val))
		}
		sb.WriteByte('}')
		return sb.String()
	case rangeValue:
		if t.step == 1 {
			return fmt.Sprintf("range(%d, %d)", t.start, t.stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", t.start, t.stop, t.step)
	case *funcValue:
		return fmt.Sprintf("<function %s>", t.name)
	case *builtinValue:
		return fmt.Sprintf("<built-in function %s>", t.name)
	case *moduleValue:
		return fmt.Sprintf("<module '%s'>", t.name)
	case *frameValue:
		return t.f.Render(frame.DefaultRenderRows)
	default:
		return pyStr(v)
	}
}

func reprSeq(open string, items []Value, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pyRepr(it))
	}
	sb.WriteString(close)
	return sb.String()
}

// quoteStr mimics Python's repr quoting: single quotes unless the string
// contains one (and no double quote).
func quoteStr(s string) string {
	quote := byte('\'')
	if strings.Contains(s, "'") && !strings.Contains(s, "\"") {
		quote = '"'
	}
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		case rune(quote):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

// ---- equality and ordering ----

// valueEq is Python ==: numeric cross-type equality, deep for containers.
func valueEq(a, b Value) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch at := a.(type) {
	case noneValue:
		_, ok := b.(noneValue)
		return ok
	case strValue:
		bt, ok := b.(strValue)
		return ok && at == bt
	case *listValue:
		bt, ok := b.(*listValue)
		return ok && seqEq(at.items, bt.items)
	case *tupleValue:
		bt, ok := b.(*tupleValue)
		return ok && seqEq(at.items, bt.items)
	case *dictValue:
		bt, ok := b.(*dictValue)
		if !ok || at.len() != bt.len() {
			return false
		}
		for _, e := range at.items() {
			bv, found, _ := bt.get(e.key)
			if !found || !valueEq(e.val, bv) {
				return false
			}
		}
		return true
	case rangeValue:
		bt, ok := b.(rangeValue)
		return ok && at == bt
	default:
		return a == b
	}
}

func seqEq(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEq(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compareValues orders two values, returning -1/0/1. The second return is
// false when the pair is unorderable (mixed types, dicts, ...).
func compareValues(a, b Value) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch at := a.(type) {
	case strValue:
		bt, ok := b.(strValue)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(at), string(bt)), true
	case *listValue:
		bt, ok := b.(*listValue)
		if !ok {
			return 0, false
		}
		return compareSeqs(at.items, bt.items)
	case *tupleValue:
		bt, ok := b.(*tupleValue)
		if !ok {
			return 0, false
		}
		return compareSeqs(at.items, bt.items)
	default:
		return 0, false
	}
}

func compareSeqs(a, b []Value) (int, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, ok := compareValues(a[i], b[i])
		if !ok {
			return 0, false
		}
		if c != 0 {
			return c, true
		}
	}
	switch {
	case len(a) < len(b):
		return -1, true
	case len(a) > len(b):
		return 1, true
	default:
		return 0, true
	}
}

// sortValues sorts in place; returns false if any pair is unorderable.
func sortValues(items []Value, reverse bool) bool {
	ok := true
	sort.SliceStable(items, func(i, j int) bool {
		c, cok := compareValues(items[i], items[j])
		if !cok {
			ok = false
			return false
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	return ok
}
