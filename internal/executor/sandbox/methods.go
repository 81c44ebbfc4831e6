package sandbox

import (
	"fmt"
	"strings"

	"github.com/makolabs/mako/internal/frame"
)

// methodFn is a builtinFn with an explicit receiver.
type methodFn func(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error)

func bindMethod(recv Value, qual string, fn methodFn) Value {
	return &builtinValue{name: qual, fn: func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		return fn(in, p, recv, args, kwargs)
	}}
}

func lookupMethod(obj Value, name string) (Value, bool) {
	var table map[string]methodFn
	var prefix string
	switch obj.(type) {
	case strValue:
		table, prefix = strMethods, "str."
	case *listValue:
		table, prefix = listMethods, "list."
	case *tupleValue:
		table, prefix = tupleMethods, "tuple."
	case *dictValue:
		table, prefix = dictMethods, "dict."
	case *frameValue:
		table, prefix = frameMethods, "frame."
	default:
		return nil, false
	}
	fn, ok := table[name]
	if !ok {
		return nil, false
	}
	return bindMethod(obj, prefix+name, fn), true
}

// ---- str ----

var strMethods = map[string]methodFn{
	"upper":      strUpper,
	"lower":      strLower,
	"strip":      strStrip,
	"split":      strSplit,
	"join":       strJoin,
	"replace":    strReplace,
	"startswith": strStartswith,
	"endswith":   strEndswith,
	"find":       strFind,
	"count":      strCount,
	"format":     strFormat,
	"isdigit":    strIsdigit,
}

func recvStr(recv Value) string { return string(recv.(strValue)) }

func strUpper(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.upper", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.upper", args, 0); err != nil {
		return nil, err
	}
	return strValue(strings.ToUpper(recvStr(recv))), nil
}

func strLower(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.lower", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.lower", args, 0); err != nil {
		return nil, err
	}
	return strValue(strings.ToLower(recvStr(recv))), nil
}

func strStrip(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.strip", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "str.strip", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return strValue(strings.TrimSpace(recvStr(recv))), nil
	}
	cutset, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("strip arg must be a string, not %s", args[0].typeName()))
	}
	return strValue(strings.Trim(recvStr(recv), string(cutset))), nil
}

func strSplit(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.split", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "str.split", args, 0, 1); err != nil {
		return nil, err
	}
	var parts []string
	if len(args) == 0 {
		parts = strings.Fields(recvStr(recv))
	} else {
		sep, ok := args[0].(strValue)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("must be str or None, not %s", args[0].typeName()))
		}
		if sep == "" {
			return nil, runtimeErr(p, "empty separator")
		}
		parts = strings.Split(recvStr(recv), string(sep))
	}
	out := &listValue{items: make([]Value, len(parts))}
	for i, s := range parts {
		out.items[i] = strValue(s)
	}
	return out, nil
}

func strJoin(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.join", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.join", args, 1); err != nil {
		return nil, err
	}
	sep := recvStr(recv)
	var parts []string
	i := 0
	err := in.iterate(p, args[0], func(v Value) error {
		s, ok := v.(strValue)
		if !ok {
			return runtimeErr(p, fmt.Sprintf("sequence item %d: expected str instance, %s found", i, v.typeName()))
		}
		parts = append(parts, string(s))
		i++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return strValue(strings.Join(parts, sep)), nil
}

func strReplace(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.replace", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.replace", args, 2); err != nil {
		return nil, err
	}
	old, okOld := args[0].(strValue)
	new_, okNew := args[1].(strValue)
	if !okOld || !okNew {
		return nil, runtimeErr(p, "replace() arguments must be strings")
	}
	return strValue(strings.ReplaceAll(recvStr(recv), string(old), string(new_))), nil
}

func strStartswith(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.startswith", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.startswith", args, 1); err != nil {
		return nil, err
	}
	prefix, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("startswith first arg must be str, not %s", args[0].typeName()))
	}
	return boolOf(strings.HasPrefix(recvStr(recv), string(prefix))), nil
}

func strEndswith(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.endswith", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.endswith", args, 1); err != nil {
		return nil, err
	}
	suffix, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("endswith first arg must be str, not %s", args[0].typeName()))
	}
	return boolOf(strings.HasSuffix(recvStr(recv), string(suffix))), nil
}

func strFind(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.find", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.find", args, 1); err != nil {
		return nil, err
	}
	sub, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be str, not %s", args[0].typeName()))
	}
	// Byte offset converted to rune offset so indexing stays consistent.
	off := strings.Index(recvStr(recv), string(sub))
	if off < 0 {
		return intValue(-1), nil
	}
	return intValue(len([]rune(recvStr(recv)[:off]))), nil
}

func strCount(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.count", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.count", args, 1); err != nil {
		return nil, err
	}
	sub, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be str, not %s", args[0].typeName()))
	}
	if sub == "" {
		return intValue(int64(len([]rune(recvStr(recv)))) + 1), nil
	}
	return intValue(int64(strings.Count(recvStr(recv), string(sub)))), nil
}

func strIsdigit(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str.isdigit", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "str.isdigit", args, 0); err != nil {
		return nil, err
	}
	s := recvStr(recv)
	if s == "" {
		return valFalse, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return valFalse, nil
		}
	}
	return valTrue, nil
}

// ---- list ----

var listMethods = map[string]methodFn{
	"append":  listAppend,
	"pop":     listPop,
	"extend":  listExtend,
	"insert":  listInsert,
	"remove":  listRemove,
	"sort":    listSort,
	"reverse": listReverse,
	"index":   listIndex,
	"count":   listCount,
}

func recvList(recv Value) *listValue { return recv.(*listValue) }

func listAppend(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.append", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.append", args, 1); err != nil {
		return nil, err
	}
	l := recvList(recv)
	l.items = append(l.items, args[0])
	return valNone, nil
}

func listPop(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.pop", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "list.pop", args, 0, 1); err != nil {
		return nil, err
	}
	l := recvList(recv)
	if len(l.items) == 0 {
		return nil, runtimeErr(p, "pop from empty list")
	}
	i := int64(len(l.items) - 1)
	if len(args) == 1 {
		n, ok := asInt(args[0])
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("'%s' object cannot be interpreted as an integer", args[0].typeName()))
		}
		i = n
	}
	n := normIndex(i, len(l.items))
	if n < 0 {
		return nil, runtimeErr(p, "pop index out of range")
	}
	v := l.items[n]
	l.items = append(l.items[:n], l.items[n+1:]...)
	return v, nil
}

func listExtend(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.extend", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.extend", args, 1); err != nil {
		return nil, err
	}
	l := recvList(recv)
	return valNone, in.iterate(p, args[0], func(v Value) error {
		l.items = append(l.items, v)
		return nil
	})
}

func listInsert(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.insert", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.insert", args, 2); err != nil {
		return nil, err
	}
	l := recvList(recv)
	i, ok := asInt(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("'%s' object cannot be interpreted as an integer", args[0].typeName()))
	}
	// insert clamps instead of erroring, like the reference behaviour.
	if i < 0 {
		i += int64(len(l.items))
	}
	if i < 0 {
		i = 0
	}
	if i > int64(len(l.items)) {
		i = int64(len(l.items))
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = args[1]
	return valNone, nil
}

func listRemove(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.remove", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.remove", args, 1); err != nil {
		return nil, err
	}
	l := recvList(recv)
	for i, v := range l.items {
		if valueEq(v, args[0]) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return valNone, nil
		}
	}
	return nil, runtimeErr(p, "list.remove(x): x not in list")
}

func listSort(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := onlyKwargs(p, "list.sort", kwargs, "reverse"); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.sort", args, 0); err != nil {
		return nil, err
	}
	reverse := false
	if v, ok := kwargs["reverse"]; ok {
		reverse = truthy(v)
	}
	l := recvList(recv)
	if !sortValues(l.items, reverse) {
		return nil, runtimeErr(p, "'<' not supported between these instances")
	}
	return valNone, nil
}

func listReverse(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.reverse", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.reverse", args, 0); err != nil {
		return nil, err
	}
	l := recvList(recv)
	for i, j := 0, len(l.items)-1; i < j; i, j = i+1, j-1 {
		l.items[i], l.items[j] = l.items[j], l.items[i]
	}
	return valNone, nil
}

func listIndex(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.index", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.index", args, 1); err != nil {
		return nil, err
	}
	for i, v := range recvList(recv).items {
		if valueEq(v, args[0]) {
			return intValue(i), nil
		}
	}
	return nil, runtimeErr(p, fmt.Sprintf("%s is not in list", pyRepr(args[0])))
}

func listCount(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list.count", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "list.count", args, 1); err != nil {
		return nil, err
	}
	count := int64(0)
	for _, v := range recvList(recv).items {
		if valueEq(v, args[0]) {
			count++
		}
	}
	return intValue(count), nil
}

// ---- tuple ----

var tupleMethods = map[string]methodFn{
	"index": tupleIndex,
	"count": tupleCount,
}

func tupleIndex(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "tuple.index", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "tuple.index", args, 1); err != nil {
		return nil, err
	}
	for i, v := range recv.(*tupleValue).items {
		if valueEq(v, args[0]) {
			return intValue(i), nil
		}
	}
	return nil, runtimeErr(p, "tuple.index(x): x not in tuple")
}

func tupleCount(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "tuple.count", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "tuple.count", args, 1); err != nil {
		return nil, err
	}
	count := int64(0)
	for _, v := range recv.(*tupleValue).items {
		if valueEq(v, args[0]) {
			count++
		}
	}
	return intValue(count), nil
}

// ---- dict ----

var dictMethods = map[string]methodFn{
	"get":    dictGet,
	"keys":   dictKeys,
	"values": dictValues,
	"items":  dictItems,
	"pop":    dictPop,
	"update": dictUpdate,
}

func recvDict(recv Value) *dictValue { return recv.(*dictValue) }

func dictGet(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.get", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "dict.get", args, 1, 2); err != nil {
		return nil, err
	}
	v, found, hashable := recvDict(recv).get(args[0])
	if !hashable {
		return nil, runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", args[0].typeName()))
	}
	if found {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return valNone, nil
}

func dictKeys(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.keys", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "dict.keys", args, 0); err != nil {
		return nil, err
	}
	out := &listValue{}
	for _, e := range recvDict(recv).items() {
		out.items = append(out.items, e.key)
	}
	return out, nil
}

func dictValues(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.values", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "dict.values", args, 0); err != nil {
		return nil, err
	}
	out := &listValue{}
	for _, e := range recvDict(recv).items() {
		out.items = append(out.items, e.val)
	}
	return out, nil
}

func dictItems(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.items", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "dict.items", args, 0); err != nil {
		return nil, err
	}
	out := &listValue{}
	for _, e := range recvDict(recv).items() {
		out.items = append(out.items, &tupleValue{items: []Value{e.key, e.val}})
	}
	return out, nil
}

func dictPop(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.pop", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "dict.pop", args, 1, 2); err != nil {
		return nil, err
	}
	d := recvDict(recv)
	v, found, hashable := d.get(args[0])
	if !hashable {
		return nil, runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", args[0].typeName()))
	}
	if found {
		d.delete(args[0])
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return nil, runtimeErr(p, fmt.Sprintf("key %s not found", pyRepr(args[0])))
}

func dictUpdate(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict.update", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "dict.update", args, 1); err != nil {
		return nil, err
	}
	other, ok := args[0].(*dictValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("update() argument must be a dict, not '%s'", args[0].typeName()))
	}
	d := recvDict(recv)
	for _, e := range other.items() {
		d.set(e.key, e.val)
	}
	return valNone, nil
}

// ---- frame ----

var frameMethods = map[string]methodFn{
	"head":     frameHead,
	"tail":     frameTail,
	"columns":  frameColumns,
	"num_rows": frameNumRows,
	"column":   frameColumnMethod,
	"row":      frameRow,
}

func recvFrame(recv Value) *frame.Frame { return recv.(*frameValue).f }

func frameHeadTail(p pos, f *frame.Frame, args []Value, head bool) (Value, error) {
	n := int64(5)
	if len(args) == 1 {
		i, ok := asInt(args[0])
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("'%s' object cannot be interpreted as an integer", args[0].typeName()))
		}
		n = i
	}
	if n < 0 {
		n = 0
	}
	if n > int64(f.NumRows()) {
		n = int64(f.NumRows())
	}
	if head {
		return &frameValue{f: f.Slice(0, int(n))}, nil
	}
	return &frameValue{f: f.Slice(f.NumRows()-int(n), f.NumRows())}, nil
}

func frameHead(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.head", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "frame.head", args, 0, 1); err != nil {
		return nil, err
	}
	return frameHeadTail(p, recvFrame(recv), args, true)
}

func frameTail(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.tail", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "frame.tail", args, 0, 1); err != nil {
		return nil, err
	}
	return frameHeadTail(p, recvFrame(recv), args, false)
}

func frameColumns(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.columns", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "frame.columns", args, 0); err != nil {
		return nil, err
	}
	out := &listValue{}
	for _, name := range recvFrame(recv).ColumnNames() {
		out.items = append(out.items, strValue(name))
	}
	return out, nil
}

func frameNumRows(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.num_rows", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "frame.num_rows", args, 0); err != nil {
		return nil, err
	}
	return intValue(recvFrame(recv).NumRows()), nil
}

func frameColumnMethod(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.column", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "frame.column", args, 1); err != nil {
		return nil, err
	}
	name, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("column name must be a string, not '%s'", args[0].typeName()))
	}
	return frameColumn(p, recvFrame(recv), string(name))
}

func frameRow(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "frame.row", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "frame.row", args, 1); err != nil {
		return nil, err
	}
	f := recvFrame(recv)
	i, ok := asInt(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("row index must be an integer, not '%s'", args[0].typeName()))
	}
	n := normIndex(i, f.NumRows())
	if n < 0 {
		return nil, runtimeErr(p, "row index out of range")
	}
	d := newDict()
	for _, name := range f.ColumnNames() {
		col, _ := f.Column(name)
		cell, null := col.Cell(n)
		d.set(strValue(name), cellValue(cell, null))
	}
	return d, nil
}

// frameColumn materializes a column as a list; nulls become None.
func frameColumn(p pos, f *frame.Frame, name string) (Value, error) {
	col, ok := f.Column(name)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("column '%s' not found", name))
	}
	out := &listValue{items: make([]Value, f.NumRows())}
	for i := 0; i < f.NumRows(); i++ {
		cell, null := col.Cell(i)
		out.items[i] = cellValue(cell, null)
	}
	return out, nil
}

func cellValue(cell any, null bool) Value {
	if null {
		return valNone
	}
	switch v := cell.(type) {
	case int64:
		return intValue(v)
	case float64:
		return floatValue(v)
	case bool:
		return boolOf(v)
	case string:
		return strValue(v)
	default:
		return valNone
	}
}
