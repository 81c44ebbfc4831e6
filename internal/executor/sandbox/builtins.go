package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// newBuiltins constructs the builtin allow-list: the ONLY names resolvable as
// globals inside a snippet beyond what the snippet itself defines. The table
// is built once per process and shared read-only by every execution. It
// mirrors an ordinary scripting prelude minus everything that touches the
// host: no open, no input, no eval/exec/compile, no reflection.
func newBuiltins() map[string]Value {
	table := map[string]Value{}
	reg := func(name string, fn builtinFn) {
		table[name] = &builtinValue{name: name, fn: fn}
	}

	reg("abs", biAbs)
	reg("all", biAll)
	reg("any", biAny)
	reg("bool", biBool)
	reg("dict", biDict)
	reg("enumerate", biEnumerate)
	reg("filter", biFilter)
	reg("float", biFloat)
	reg("int", biInt)
	reg("isinstance", biIsinstance)
	reg("len", biLen)
	reg("list", biList)
	reg("map", biMap)
	reg("max", biMax)
	reg("min", biMin)
	reg("print", biPrint)
	reg("range", biRange)
	reg("repr", biRepr)
	reg("reversed", biReversed)
	reg("round", biRound)
	reg("sorted", biSorted)
	reg("str", biStr)
	reg("sum", biSum)
	reg("tuple", biTuple)
	reg("zip", biZip)
	return table
}

// ---- argument plumbing ----

func wantExact(p pos, name string, args []Value, n int) error {
	if len(args) == n {
		return nil
	}
	plural := "arguments"
	if n == 1 {
		plural = "argument"
	}
	return runtimeErr(p, fmt.Sprintf("%s() takes exactly %d %s (%d given)",
		name, n, plural, len(args)))
}

func wantRange(p pos, name string, args []Value, lo, hi int) error {
	if len(args) >= lo && len(args) <= hi {
		return nil
	}
	return runtimeErr(p, fmt.Sprintf("%s() takes from %d to %d arguments (%d given)",
		name, lo, hi, len(args)))
}

func noKwargs(p pos, name string, kwargs map[string]Value) error {
	for k := range kwargs {
		return runtimeErr(p, fmt.Sprintf("%s() got an unexpected keyword argument '%s'", name, k))
	}
	return nil
}

func onlyKwargs(p pos, name string, kwargs map[string]Value, allowed ...string) error {
	for k := range kwargs {
		ok := false
		for _, a := range allowed {
			if k == a {
				ok = true
				break
			}
		}
		if !ok {
			return runtimeErr(p, fmt.Sprintf("%s() got an unexpected keyword argument '%s'", name, k))
		}
	}
	return nil
}

func notIterable(p pos, v Value) error {
	return runtimeErr(p, fmt.Sprintf("'%s' object is not iterable", v.typeName()))
}

// ---- the builtins ----

func biAbs(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "abs", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "abs", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case intValue:
		if v == math.MinInt64 {
			return nil, runtimeErr(p, "integer overflow")
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case boolValue:
		if v {
			return intValue(1), nil
		}
		return intValue(0), nil
	case floatValue:
		return floatValue(math.Abs(float64(v))), nil
	default:
		return nil, runtimeErr(p, fmt.Sprintf("bad operand type for abs(): '%s'", v.typeName()))
	}
}

func biAll(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "all", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "all", args, 1); err != nil {
		return nil, err
	}
	result := true
	err := in.iterate(p, args[0], func(v Value) error {
		if !truthy(v) {
			result = false
			return errStopIteration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boolOf(result), nil
}

func biAny(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "any", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "any", args, 1); err != nil {
		return nil, err
	}
	result := false
	err := in.iterate(p, args[0], func(v Value) error {
		if truthy(v) {
			result = true
			return errStopIteration
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boolOf(result), nil
}

func biBool(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "bool", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return valFalse, nil
	}
	return boolOf(truthy(args[0])), nil
}

func biDict(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "dict", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "dict", args, 0, 1); err != nil {
		return nil, err
	}
	d := newDict()
	if len(args) == 0 {
		return d, nil
	}
	switch src := args[0].(type) {
	case *dictValue:
		for _, e := range src.items() {
			d.set(e.key, e.val)
		}
		return d, nil
	case *listValue, *tupleValue:
		err := in.iterate(p, src, func(v Value) error {
			pair, ok := pairOf(v)
			if !ok {
				return runtimeErr(p, "dict update sequence element is not a pair")
			}
			if !d.set(pair[0], pair[1]) {
				return runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", pair[0].typeName()))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, runtimeErr(p, fmt.Sprintf("dict() argument must be a dict or a sequence of pairs, not '%s'", src.typeName()))
	}
}

func pairOf(v Value) ([2]Value, bool) {
	switch s := v.(type) {
	case *listValue:
		if len(s.items) == 2 {
			return [2]Value{s.items[0], s.items[1]}, true
		}
	case *tupleValue:
		if len(s.items) == 2 {
			return [2]Value{s.items[0], s.items[1]}, true
		}
	}
	return [2]Value{}, false
}

func biEnumerate(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := onlyKwargs(p, "enumerate", kwargs, "start"); err != nil {
		return nil, err
	}
	if err := wantRange(p, "enumerate", args, 1, 2); err != nil {
		return nil, err
	}
	var start int64
	if len(args) == 2 {
		n, ok := asInt(args[1])
		if !ok {
			return nil, runtimeErr(p, "enumerate() start must be an integer")
		}
		start = n
	}
	if s, ok := kwargs["start"]; ok {
		n, ok := asInt(s)
		if !ok {
			return nil, runtimeErr(p, "enumerate() start must be an integer")
		}
		start = n
	}
	out := &listValue{}
	i := start
	err := in.iterate(p, args[0], func(v Value) error {
		out.items = append(out.items, &tupleValue{items: []Value{intValue(i), v}})
		i++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func biFilter(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "filter", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "filter", args, 2); err != nil {
		return nil, err
	}
	pred := args[0]
	out := &listValue{}
	err := in.iterate(p, args[1], func(v Value) error {
		keep := false
		if _, isNone := pred.(noneValue); isNone {
			keep = truthy(v)
		} else {
			r, err := in.callValue(p, pred, []Value{v}, nil)
			if err != nil {
				return err
			}
			keep = truthy(r)
		}
		if keep {
			out.items = append(out.items, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func biFloat(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "float", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "float", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return floatValue(0), nil
	}
	switch v := args[0].(type) {
	case strValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, runtimeErr(p, fmt.Sprintf("could not convert string to float: %s", quoteStr(string(v))))
		}
		return floatValue(f), nil
	default:
		if f, ok := asFloat(v); ok {
			return floatValue(f), nil
		}
		return nil, runtimeErr(p, fmt.Sprintf("float() argument must be a string or a number, not '%s'", v.typeName()))
	}
}

func biInt(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "int", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "int", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return intValue(0), nil
	}
	switch v := args[0].(type) {
	case strValue:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return nil, runtimeErr(p, fmt.Sprintf("invalid literal for int() with base 10: %s", quoteStr(string(v))))
		}
		return intValue(n), nil
	case floatValue:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, runtimeErr(p, "cannot convert float infinity or NaN to integer")
		}
		return intValue(int64(math.Trunc(f))), nil
	default:
		if n, ok := asInt(v); ok {
			return intValue(n), nil
		}
		return nil, runtimeErr(p, fmt.Sprintf("int() argument must be a string or a number, not '%s'", v.typeName()))
	}
}

// typeMatches maps a class argument (which in this language is the builtin
// conversion function of the same name) to the runtime tag it checks.
func typeMatches(v Value, cls Value) (bool, string) {
	b, ok := cls.(*builtinValue)
	if !ok {
		return false, ""
	}
	switch b.name {
	case "int":
		_, isInt := v.(intValue)
		_, isBool := v.(boolValue)
		return isInt || isBool, b.name // bool is an int subtype
	case "float":
		_, is := v.(floatValue)
		return is, b.name
	case "str":
		_, is := v.(strValue)
		return is, b.name
	case "bool":
		_, is := v.(boolValue)
		return is, b.name
	case "list":
		_, is := v.(*listValue)
		return is, b.name
	case "tuple":
		_, is := v.(*tupleValue)
		return is, b.name
	case "dict":
		_, is := v.(*dictValue)
		return is, b.name
	case "range":
		_, is := v.(rangeValue)
		return is, b.name
	default:
		return false, ""
	}
}

func biIsinstance(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "isinstance", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "isinstance", args, 2); err != nil {
		return nil, err
	}
	classes := []Value{args[1]}
	if tup, ok := args[1].(*tupleValue); ok {
		classes = tup.items
	}
	for _, cls := range classes {
		match, name := typeMatches(args[0], cls)
		if name == "" {
			return nil, runtimeErr(p, "isinstance() arg 2 must be a type or tuple of types")
		}
		if match {
			return valTrue, nil
		}
	}
	return valFalse, nil
}

func biLen(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "len", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case strValue:
		return intValue(len([]rune(string(v)))), nil
	case *listValue:
		return intValue(len(v.items)), nil
	case *tupleValue:
		return intValue(len(v.items)), nil
	case *dictValue:
		return intValue(v.len()), nil
	case rangeValue:
		return intValue(v.len()), nil
	case *frameValue:
		return intValue(v.f.NumRows()), nil
	default:
		return nil, runtimeErr(p, fmt.Sprintf("object of type '%s' has no len()", v.typeName()))
	}
}

func biList(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "list", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "list", args, 0, 1); err != nil {
		return nil, err
	}
	out := &listValue{}
	if len(args) == 0 {
		return out, nil
	}
	if r, ok := args[0].(rangeValue); ok {
		if err := in.checkSize(p, r.len()); err != nil {
			return nil, err
		}
	}
	err := in.iterate(p, args[0], func(v Value) error {
		out.items = append(out.items, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func biMap(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "map", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "map", args, 2); err != nil {
		return nil, err
	}
	fn := args[0]
	out := &listValue{}
	err := in.iterate(p, args[1], func(v Value) error {
		r, err := in.callValue(p, fn, []Value{v}, nil)
		if err != nil {
			return err
		}
		out.items = append(out.items, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func extreme(in *interp, p pos, name string, args []Value, wantGreater bool) (Value, error) {
	op := "<"
	if wantGreater {
		op = ">"
	}
	items := args
	if len(args) == 1 {
		collected := []Value{}
		err := in.iterate(p, args[0], func(v Value) error {
			collected = append(collected, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		items = collected
		if len(items) == 0 {
			return nil, runtimeErr(p, fmt.Sprintf("%s() arg is an empty sequence", name))
		}
	}
	best := items[0]
	for _, v := range items[1:] {
		c, ok := compareValues(v, best)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
				op, v.typeName(), best.typeName()))
		}
		if (wantGreater && c > 0) || (!wantGreater && c < 0) {
			best = v
		}
	}
	return best, nil
}

func biMax(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "max", kwargs); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, runtimeErr(p, "max expected at least 1 argument, got 0")
	}
	return extreme(in, p, "max", args, true)
}

func biMin(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "min", kwargs); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, runtimeErr(p, "min expected at least 1 argument, got 0")
	}
	return extreme(in, p, "min", args, false)
}

func biPrint(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := onlyKwargs(p, "print", kwargs, "sep", "end"); err != nil {
		return nil, err
	}
	sep := " "
	end := "\n"
	if v, ok := kwargs["sep"]; ok {
		s, isStr := v.(strValue)
		if !isStr {
			return nil, runtimeErr(p, fmt.Sprintf("sep must be None or a string, not %s", v.typeName()))
		}
		sep = string(s)
	}
	if v, ok := kwargs["end"]; ok {
		s, isStr := v.(strValue)
		if !isStr {
			return nil, runtimeErr(p, fmt.Sprintf("end must be None or a string, not %s", v.typeName()))
		}
		end = string(s)
	}

	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(pyStr(a))
	}
	sb.WriteString(end)
	if _, err := in.stdout.Write([]byte(sb.String())); err != nil {
		return nil, runtimeErr(p, err.Error())
	}
	return valNone, nil
}

func biRange(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "range", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "range", args, 1, 3); err != nil {
		return nil, err
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := asInt(a)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("'%s' object cannot be interpreted as an integer", a.typeName()))
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return rangeValue{start: 0, stop: nums[0], step: 1}, nil
	case 2:
		return rangeValue{start: nums[0], stop: nums[1], step: 1}, nil
	default:
		if nums[2] == 0 {
			return nil, runtimeErr(p, "range() arg 3 must not be zero")
		}
		return rangeValue{start: nums[0], stop: nums[1], step: nums[2]}, nil
	}
}

func biRepr(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "repr", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "repr", args, 1); err != nil {
		return nil, err
	}
	return strValue(pyRepr(args[0])), nil
}

func biReversed(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "reversed", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "reversed", args, 1); err != nil {
		return nil, err
	}
	if r, ok := args[0].(rangeValue); ok {
		if err := in.checkSize(p, r.len()); err != nil {
			return nil, err
		}
	}
	var collected []Value
	err := in.iterate(p, args[0], func(v Value) error {
		collected = append(collected, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return &listValue{items: collected}, nil
}

func biRound(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "round", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "round", args, 1, 2); err != nil {
		return nil, err
	}
	f, ok := asFloat(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("type %s doesn't define a rounding behaviour", args[0].typeName()))
	}
	if len(args) == 1 {
		// Banker's rounding, same as Python 3.
		return intValue(int64(math.RoundToEven(f))), nil
	}
	nd, ok := asInt(args[1])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("'%s' object cannot be interpreted as an integer", args[1].typeName()))
	}
	scale := math.Pow(10, float64(nd))
	return floatValue(math.RoundToEven(f*scale) / scale), nil
}

func biSorted(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := onlyKwargs(p, "sorted", kwargs, "reverse"); err != nil {
		return nil, err
	}
	if err := wantExact(p, "sorted", args, 1); err != nil {
		return nil, err
	}
	reverse := false
	if v, ok := kwargs["reverse"]; ok {
		reverse = truthy(v)
	}
	var collected []Value
	err := in.iterate(p, args[0], func(v Value) error {
		collected = append(collected, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sortValues(collected, reverse) {
		return nil, runtimeErr(p, "'<' not supported between these instances")
	}
	return &listValue{items: collected}, nil
}

func biStr(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "str", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return strValue(""), nil
	}
	return strValue(pyStr(args[0])), nil
}

func biSum(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "sum", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "sum", args, 1, 2); err != nil {
		return nil, err
	}
	var intSum int64
	var floatSum float64
	isFloat := false
	if len(args) == 2 {
		switch s := args[1].(type) {
		case intValue:
			intSum = int64(s)
		case floatValue:
			isFloat = true
			floatSum = float64(s)
		default:
			return nil, runtimeErr(p, fmt.Sprintf("sum() start must be a number, not '%s'", s.typeName()))
		}
	}
	err := in.iterate(p, args[0], func(v Value) error {
		switch n := v.(type) {
		case intValue:
			if isFloat {
				floatSum += float64(n)
			} else {
				intSum += int64(n)
			}
		case boolValue:
			if n {
				if isFloat {
					floatSum++
				} else {
					intSum++
				}
			}
		case floatValue:
			if !isFloat {
				isFloat = true
				floatSum = float64(intSum)
			}
			floatSum += float64(n)
		default:
			return runtimeErr(p, fmt.Sprintf("unsupported operand type(s) for +: 'int' and '%s'", v.typeName()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if isFloat {
		return floatValue(floatSum), nil
	}
	return intValue(intSum), nil
}

func biTuple(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "tuple", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "tuple", args, 0, 1); err != nil {
		return nil, err
	}
	out := &tupleValue{}
	if len(args) == 0 {
		return out, nil
	}
	if r, ok := args[0].(rangeValue); ok {
		if err := in.checkSize(p, r.len()); err != nil {
			return nil, err
		}
	}
	err := in.iterate(p, args[0], func(v Value) error {
		out.items = append(out.items, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func biZip(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "zip", kwargs); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return &listValue{}, nil
	}
	seqs := make([][]Value, len(args))
	for i, a := range args {
		var collected []Value
		err := in.iterate(p, a, func(v Value) error {
			collected = append(collected, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		seqs[i] = collected
	}
	shortest := len(seqs[0])
	for _, s := range seqs[1:] {
		if len(s) < shortest {
			shortest = len(s)
		}
	}
	out := &listValue{}
	for i := 0; i < shortest; i++ {
		row := make([]Value, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		out.items = append(out.items, &tupleValue{items: row})
	}
	return out, nil
}
