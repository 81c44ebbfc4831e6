package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// moduleBuilder materializes a module the first time a script imports it.
// Builders run per execution, so stateful modules (random, funcs) never share
// state across requests.
type moduleBuilder func(in *interp, p pos) (*moduleValue, error)

// registry is the import gate. Anything absent from the table is denied;
// there is no fallback to a host module system.
type registry struct {
	builders map[string]moduleBuilder
}

func newRegistry() *registry {
	return &registry{builders: map[string]moduleBuilder{
		"math":       buildMathModule,
		"random":     buildRandomModule,
		"statistics": buildStatisticsModule,
		"json":       buildJSONModule,
	}}
}

func (r *registry) register(name string, b moduleBuilder) {
	r.builders[name] = b
}

func (r *registry) allowed(name string) bool {
	_, ok := r.builders[name]
	return ok
}

func (r *registry) build(in *interp, p pos, name string) (*moduleValue, error) {
	b, ok := r.builders[name]
	if !ok {
		return nil, importErr(p, fmt.Sprintf("module '%s' is not permitted", name))
	}
	return b(in, p)
}

func module(name string, attrs map[string]Value) *moduleValue {
	return &moduleValue{name: name, attrs: attrs}
}

func modFn(mod, name string, fn builtinFn) Value {
	return &builtinValue{name: mod + "." + name, fn: fn}
}

// ---- math ----

func buildMathModule(in *interp, p pos) (*moduleValue, error) {
	attrs := map[string]Value{
		"pi":  floatValue(math.Pi),
		"e":   floatValue(math.E),
		"tau": floatValue(2 * math.Pi),
		"inf": floatValue(math.Inf(1)),
		"nan": floatValue(math.NaN()),
	}
	unary := func(name string, f func(float64) (float64, error)) {
		attrs[name] = modFn("math", name, func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
			if err := noKwargs(p, "math."+name, kwargs); err != nil {
				return nil, err
			}
			if err := wantExact(p, "math."+name, args, 1); err != nil {
				return nil, err
			}
			x, ok := asFloat(args[0])
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", args[0].typeName()))
			}
			r, err := f(x)
			if err != nil {
				return nil, runtimeErr(p, err.Error())
			}
			return floatValue(r), nil
		})
	}
	domain := func(f func(float64) float64, bad func(float64) bool) func(float64) (float64, error) {
		return func(x float64) (float64, error) {
			if bad(x) {
				return 0, errMathDomain
			}
			return f(x), nil
		}
	}
	plain := func(f func(float64) float64) func(float64) (float64, error) {
		return func(x float64) (float64, error) { return f(x), nil }
	}

	unary("sqrt", domain(math.Sqrt, func(x float64) bool { return x < 0 }))
	unary("exp", plain(math.Exp))
	unary("log10", domain(math.Log10, func(x float64) bool { return x <= 0 }))
	unary("log2", domain(math.Log2, func(x float64) bool { return x <= 0 }))
	unary("sin", plain(math.Sin))
	unary("cos", plain(math.Cos))
	unary("tan", plain(math.Tan))
	unary("fabs", plain(math.Abs))

	attrs["log"] = modFn("math", "log", biMathLog)
	attrs["floor"] = modFn("math", "floor", biMathFloor)
	attrs["ceil"] = modFn("math", "ceil", biMathCeil)
	attrs["pow"] = modFn("math", "pow", biMathPow)
	attrs["gcd"] = modFn("math", "gcd", biMathGCD)
	return module("math", attrs), nil
}

var errMathDomain = fmt.Errorf("math domain error")

func biMathLog(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "math.log", kwargs); err != nil {
		return nil, err
	}
	if err := wantRange(p, "math.log", args, 1, 2); err != nil {
		return nil, err
	}
	x, ok := asFloat(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", args[0].typeName()))
	}
	if x <= 0 {
		return nil, runtimeErr(p, "math domain error")
	}
	if len(args) == 1 {
		return floatValue(math.Log(x)), nil
	}
	base, ok := asFloat(args[1])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", args[1].typeName()))
	}
	if base <= 0 || base == 1 {
		return nil, runtimeErr(p, "math domain error")
	}
	return floatValue(math.Log(x) / math.Log(base)), nil
}

func biMathFloor(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "math.floor", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "math.floor", args, 1); err != nil {
		return nil, err
	}
	x, ok := asFloat(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", args[0].typeName()))
	}
	return intValue(int64(math.Floor(x))), nil
}

func biMathCeil(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "math.ceil", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "math.ceil", args, 1); err != nil {
		return nil, err
	}
	x, ok := asFloat(args[0])
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", args[0].typeName()))
	}
	return intValue(int64(math.Ceil(x))), nil
}

func biMathPow(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "math.pow", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "math.pow", args, 2); err != nil {
		return nil, err
	}
	x, okX := asFloat(args[0])
	y, okY := asFloat(args[1])
	if !okX || !okY {
		return nil, runtimeErr(p, "must be real number")
	}
	r := math.Pow(x, y)
	if math.IsNaN(r) && !math.IsNaN(x) && !math.IsNaN(y) {
		return nil, runtimeErr(p, "math domain error")
	}
	return floatValue(r), nil
}

func biMathGCD(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "math.gcd", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "math.gcd", args, 2); err != nil {
		return nil, err
	}
	a, okA := asInt(args[0])
	b, okB := asInt(args[1])
	if !okA || !okB {
		return nil, runtimeErr(p, "gcd() arguments must be integers")
	}
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return intValue(a), nil
}

// ---- random ----

func buildRandomModule(in *interp, p pos) (*moduleValue, error) {
	if in.rng == nil {
		in.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	attrs := map[string]Value{}
	attrs["random"] = modFn("random", "random", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.random", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "random.random", args, 0); err != nil {
			return nil, err
		}
		return floatValue(in.rng.Float64()), nil
	})
	attrs["randint"] = modFn("random", "randint", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.randint", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "random.randint", args, 2); err != nil {
			return nil, err
		}
		a, okA := asInt(args[0])
		b, okB := asInt(args[1])
		if !okA || !okB {
			return nil, runtimeErr(p, "randint() arguments must be integers")
		}
		if a > b {
			return nil, runtimeErr(p, fmt.Sprintf("empty range for randint(%d, %d)", a, b))
		}
		return intValue(a + in.rng.Int63n(b-a+1)), nil
	})
	attrs["uniform"] = modFn("random", "uniform", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.uniform", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "random.uniform", args, 2); err != nil {
			return nil, err
		}
		a, okA := asFloat(args[0])
		b, okB := asFloat(args[1])
		if !okA || !okB {
			return nil, runtimeErr(p, "uniform() arguments must be numbers")
		}
		return floatValue(a + (b-a)*in.rng.Float64()), nil
	})
	attrs["choice"] = modFn("random", "choice", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.choice", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "random.choice", args, 1); err != nil {
			return nil, err
		}
		var items []Value
		switch s := args[0].(type) {
		case *listValue:
			items = s.items
		case *tupleValue:
			items = s.items
		case strValue:
			runes := []rune(string(s))
			if len(runes) == 0 {
				break
			}
			return strValue(runes[in.rng.Intn(len(runes))]), nil
		default:
			return nil, notIterable(p, args[0])
		}
		if len(items) == 0 {
			return nil, runtimeErr(p, "cannot choose from an empty sequence")
		}
		return items[in.rng.Intn(len(items))], nil
	})
	attrs["shuffle"] = modFn("random", "shuffle", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.shuffle", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "random.shuffle", args, 1); err != nil {
			return nil, err
		}
		l, ok := args[0].(*listValue)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("shuffle() argument must be a list, not '%s'", args[0].typeName()))
		}
		in.rng.Shuffle(len(l.items), func(i, j int) {
			l.items[i], l.items[j] = l.items[j], l.items[i]
		})
		return valNone, nil
	})
	attrs["seed"] = modFn("random", "seed", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "random.seed", kwargs); err != nil {
			return nil, err
		}
		if err := wantRange(p, "random.seed", args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			in.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
			return valNone, nil
		}
		n, ok := asInt(args[0])
		if !ok {
			return nil, runtimeErr(p, "seed() argument must be an integer")
		}
		in.rng = rand.New(rand.NewSource(n))
		return valNone, nil
	})
	return module("random", attrs), nil
}

// ---- statistics ----

func numbersFrom(in *interp, p pos, name string, v Value) ([]float64, error) {
	var out []float64
	err := in.iterate(p, v, func(item Value) error {
		f, ok := asFloat(item)
		if !ok {
			return runtimeErr(p, fmt.Sprintf("%s requires numeric data, got %s", name, item.typeName()))
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildStatisticsModule(in *interp, p pos) (*moduleValue, error) {
	attrs := map[string]Value{}
	attrs["mean"] = modFn("statistics", "mean", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "statistics.mean", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "statistics.mean", args, 1); err != nil {
			return nil, err
		}
		data, err := numbersFrom(in, p, "mean", args[0])
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, runtimeErr(p, "mean requires at least one data point")
		}
		var sum float64
		for _, x := range data {
			sum += x
		}
		return floatValue(sum / float64(len(data))), nil
	})
	attrs["median"] = modFn("statistics", "median", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "statistics.median", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "statistics.median", args, 1); err != nil {
			return nil, err
		}
		data, err := numbersFrom(in, p, "median", args[0])
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, runtimeErr(p, "no median for empty data")
		}
		sort.Float64s(data)
		n := len(data)
		if n%2 == 1 {
			return floatValue(data[n/2]), nil
		}
		return floatValue((data[n/2-1] + data[n/2]) / 2), nil
	})
	attrs["mode"] = modFn("statistics", "mode", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		if err := noKwargs(p, "statistics.mode", kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, "statistics.mode", args, 1); err != nil {
			return nil, err
		}
		var items []Value
		err := in.iterate(p, args[0], func(v Value) error {
			items = append(items, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, runtimeErr(p, "no mode for empty data")
		}
		// First-seen most common value, matching modern mode() behaviour.
		best := items[0]
		bestCount := 0
		for i, candidate := range items {
			count := 0
			for _, v := range items {
				if valueEq(candidate, v) {
					count++
				}
			}
			if count > bestCount {
				best = items[i]
				bestCount = count
			}
		}
		return best, nil
	})
	attrs["stdev"] = modFn("statistics", "stdev", statSpread("stdev", true, true))
	attrs["variance"] = modFn("statistics", "variance", statSpread("variance", false, true))
	attrs["pstdev"] = modFn("statistics", "pstdev", statSpread("pstdev", true, false))
	attrs["pvariance"] = modFn("statistics", "pvariance", statSpread("pvariance", false, false))
	return module("statistics", attrs), nil
}

// statSpread covers the four spread estimators. sample variance divides by
// n-1 and needs two points; population variance divides by n and needs one.
func statSpread(name string, sqrtResult, sample bool) builtinFn {
	return func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
		full := "statistics." + name
		if err := noKwargs(p, full, kwargs); err != nil {
			return nil, err
		}
		if err := wantExact(p, full, args, 1); err != nil {
			return nil, err
		}
		data, err := numbersFrom(in, p, name, args[0])
		if err != nil {
			return nil, err
		}
		if sample && len(data) < 2 {
			return nil, runtimeErr(p, fmt.Sprintf("%s requires at least two data points", name))
		}
		if !sample && len(data) == 0 {
			return nil, runtimeErr(p, fmt.Sprintf("%s requires at least one data point", name))
		}
		var sum float64
		for _, x := range data {
			sum += x
		}
		mean := sum / float64(len(data))
		var ss float64
		for _, x := range data {
			d := x - mean
			ss += d * d
		}
		div := float64(len(data))
		if sample {
			div = float64(len(data) - 1)
		}
		v := ss / div
		if sqrtResult {
			v = math.Sqrt(v)
		}
		return floatValue(v), nil
	}
}

// ---- json ----

func buildJSONModule(in *interp, p pos) (*moduleValue, error) {
	attrs := map[string]Value{
		"dumps": modFn("json", "dumps", biJSONDumps),
		"loads": modFn("json", "loads", biJSONLoads),
	}
	return module("json", attrs), nil
}

func biJSONDumps(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := onlyKwargs(p, "json.dumps", kwargs, "indent"); err != nil {
		return nil, err
	}
	if err := wantExact(p, "json.dumps", args, 1); err != nil {
		return nil, err
	}
	indent := ""
	if v, ok := kwargs["indent"]; ok {
		if n, isInt := asInt(v); isInt && n > 0 {
			indent = strings.Repeat(" ", int(n))
		}
	}
	var sb strings.Builder
	if err := writeJSONValue(p, &sb, args[0], indent, 0); err != nil {
		return nil, err
	}
	return strValue(sb.String()), nil
}

// writeJSONValue serializes by hand so dict keys keep insertion order and the
// separators match the conventional text form ("a": 1, "b": 2).
func writeJSONValue(p pos, sb *strings.Builder, v Value, indent string, depth int) error {
	itemSep, kvSep := ", ", ": "
	open := func() {}
	between := func() { sb.WriteString(itemSep) }
	closing := func() {}
	if indent != "" {
		itemSep = ","
		pad := strings.Repeat(indent, depth+1)
		open = func() { sb.WriteString("\n" + pad) }
		between = func() { sb.WriteString(itemSep + "\n" + pad) }
		closing = func() { sb.WriteString("\n" + strings.Repeat(indent, depth)) }
	}

	writeSeq := func(items []Value) error {
		sb.WriteByte('[')
		if len(items) == 0 {
			sb.WriteByte(']')
			return nil
		}
		open()
		for i, item := range items {
			if i > 0 {
				between()
			}
			if err := writeJSONValue(p, sb, item, indent, depth+1); err != nil {
				return err
			}
		}
		closing()
		sb.WriteByte(']')
		return nil
	}

	switch t := v.(type) {
	case noneValue:
		sb.WriteString("null")
	case boolValue:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case intValue:
		sb.WriteString(strconv.FormatInt(int64(t), 10))
	case floatValue:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return runtimeErr(p, "out of range float values are not JSON compliant")
		}
		sb.WriteString(floatStr(f))
	case strValue:
		writeJSONString(sb, string(t))
	case *listValue:
		return writeSeq(t.items)
	case *tupleValue:
		return writeSeq(t.items)
	case *dictValue:
		entries := t.items()
		sb.WriteByte('{')
		if len(entries) == 0 {
			sb.WriteByte('}')
			return nil
		}
		open()
		for i, e := range entries {
			if i > 0 {
				between()
			}
			key, err := jsonKey(p, e.key)
			if err != nil {
				return err
			}
			writeJSONString(sb, key)
			sb.WriteString(kvSep)
			if err := writeJSONValue(p, sb, e.val, indent, depth+1); err != nil {
				return err
			}
		}
		closing()
		sb.WriteByte('}')
	default:
		return runtimeErr(p, fmt.Sprintf("object of type '%s' is not JSON serializable", v.typeName()))
	}
	return nil
}

func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 || r > 0x7e {
				// Non-ASCII escapes keep the output 7-bit clean.
				if r > 0xffff {
					r1, r2 := utf16.EncodeRune(r)
					fmt.Fprintf(sb, `\u%04x\u%04x`, r1, r2)
				} else {
					fmt.Fprintf(sb, `\u%04x`, r)
				}
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}

func jsonKey(p pos, v Value) (string, error) {
	switch t := v.(type) {
	case strValue:
		return string(t), nil
	case intValue:
		return strconv.FormatInt(int64(t), 10), nil
	case floatValue:
		return floatStr(float64(t)), nil
	case boolValue:
		if t {
			return "true", nil
		}
		return "false", nil
	case noneValue:
		return "null", nil
	default:
		return "", runtimeErr(p, fmt.Sprintf("keys must be str, int, float, bool or None, not '%s'", v.typeName()))
	}
}

func biJSONLoads(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
	if err := noKwargs(p, "json.loads", kwargs); err != nil {
		return nil, err
	}
	if err := wantExact(p, "json.loads", args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(strValue)
	if !ok {
		return nil, runtimeErr(p, fmt.Sprintf("the JSON object must be str, not '%s'", args[0].typeName()))
	}
	dec := json.NewDecoder(strings.NewReader(string(s)))
	dec.UseNumber()
	v, err := decodeJSON(p, dec)
	if err != nil {
		return nil, err
	}
	// Reject trailing garbage after the first document.
	if dec.More() {
		return nil, runtimeErr(p, "invalid JSON: extra data")
	}
	return v, nil
}

// decodeJSON walks the token stream instead of decoding into map[string]any
// so object keys keep their document order.
func decodeJSON(p pos, dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, runtimeErr(p, fmt.Sprintf("invalid JSON: %v", err))
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			out := &listValue{}
			for dec.More() {
				item, err := decodeJSON(p, dec)
				if err != nil {
					return nil, err
				}
				out.items = append(out.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, runtimeErr(p, fmt.Sprintf("invalid JSON: %v", err))
			}
			return out, nil
		case '{':
			d := newDict()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, runtimeErr(p, fmt.Sprintf("invalid JSON: %v", err))
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, runtimeErr(p, "invalid JSON: object key is not a string")
				}
				val, err := decodeJSON(p, dec)
				if err != nil {
					return nil, err
				}
				d.set(strValue(key), val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, runtimeErr(p, fmt.Sprintf("invalid JSON: %v", err))
			}
			return d, nil
		default:
			return nil, runtimeErr(p, "invalid JSON")
		}
	case bool:
		return boolOf(t), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			return intValue(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, runtimeErr(p, fmt.Sprintf("invalid JSON number: %s", string(t)))
		}
		return floatValue(f), nil
	case string:
		return strValue(t), nil
	case nil:
		return valNone, nil
	default:
		return nil, runtimeErr(p, "invalid JSON value")
	}
}
