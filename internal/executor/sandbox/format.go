package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// formatPercent implements the % operator with a string left operand. The
// supported verbs are the ones snippets actually reach for: %s %r %d %i %f
// %x %% with optional flag, width, and precision.
func (in *interp) formatPercent(p pos, format string, arg Value) (Value, error) {
	var args []Value
	if t, ok := arg.(*tupleValue); ok {
		args = t.items
	} else {
		args = []Value{arg}
	}
	next := func() (Value, error) {
		if len(args) == 0 {
			return nil, runtimeErr(p, "not enough arguments for format string")
		}
		v := args[0]
		args = args[1:]
		return v, nil
	}

	var sb strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '%' {
			sb.WriteRune(r)
			continue
		}
		i++
		if i >= len(runes) {
			return nil, runtimeErr(p, "incomplete format")
		}
		// flags, width, precision
		spec := []rune{'%'}
		for i < len(runes) && (runes[i] == '-' || runes[i] == '+' || runes[i] == '0' || runes[i] == ' ') {
			spec = append(spec, runes[i])
			i++
		}
		for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
			spec = append(spec, runes[i])
			i++
		}
		if i < len(runes) && runes[i] == '.' {
			spec = append(spec, runes[i])
			i++
			for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
				spec = append(spec, runes[i])
				i++
			}
		}
		if i >= len(runes) {
			return nil, runtimeErr(p, "incomplete format")
		}
		verb := runes[i]
		switch verb {
		case '%':
			sb.WriteByte('%')
		case 's', 'r':
			v, err := next()
			if err != nil {
				return nil, err
			}
			text := pyStr(v)
			if verb == 'r' {
				text = pyRepr(v)
			}
			fmt.Fprintf(&sb, string(append(spec, 's')), text)
		case 'd', 'i':
			v, err := next()
			if err != nil {
				return nil, err
			}
			var n int64
			switch t := v.(type) {
			case floatValue:
				n = int64(t)
			default:
				i64, ok := asInt(t)
				if !ok {
					return nil, runtimeErr(p, fmt.Sprintf("%%d format: a real number is required, not %s", v.typeName()))
				}
				n = i64
			}
			fmt.Fprintf(&sb, string(append(spec, 'd')), n)
		case 'f':
			v, err := next()
			if err != nil {
				return nil, err
			}
			f, ok := asFloat(v)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("must be real number, not %s", v.typeName()))
			}
			// %f defaults to six decimal places.
			if !strings.ContainsRune(string(spec), '.') {
				spec = append(spec, '.', '6')
			}
			fmt.Fprintf(&sb, string(append(spec, 'f')), f)
		case 'x', 'X':
			v, err := next()
			if err != nil {
				return nil, err
			}
			n, ok := asInt(v)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("%%x format: an integer is required, not %s", v.typeName()))
			}
			fmt.Fprintf(&sb, string(append(spec, verb)), n)
		default:
			return nil, runtimeErr(p, fmt.Sprintf("unsupported format character '%c'", verb))
		}
	}
	if len(args) > 0 {
		return nil, runtimeErr(p, "not all arguments converted during string formatting")
	}
	return strValue(sb.String()), nil
}

// strFormat implements str.format with {} auto-numbering, {0} manual indexing,
// {name} keyword fields, and float precision specs like {:.2f}.
func strFormat(in *interp, p pos, recv Value, args []Value, kwargs map[string]Value) (Value, error) {
	format := recvStr(recv)
	var sb strings.Builder
	runes := []rune(format)
	auto := 0
	manual := false
	autoUsed := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end < 0 {
				return nil, runtimeErr(p, "single '{' encountered in format string")
			}
			field := string(runes[i+1 : end])
			i = end

			name, spec := field, ""
			if k := strings.IndexByte(field, ':'); k >= 0 {
				name, spec = field[:k], field[k+1:]
			}

			var v Value
			switch {
			case name == "":
				if manual {
					return nil, runtimeErr(p, "cannot switch from manual field specification to automatic field numbering")
				}
				autoUsed = true
				if auto >= len(args) {
					return nil, runtimeErr(p, fmt.Sprintf("replacement index %d out of range", auto))
				}
				v = args[auto]
				auto++
			case isDigits(name):
				if autoUsed {
					return nil, runtimeErr(p, "cannot switch from automatic field numbering to manual field specification")
				}
				manual = true
				idx, _ := strconv.Atoi(name)
				if idx >= len(args) {
					return nil, runtimeErr(p, fmt.Sprintf("replacement index %d out of range", idx))
				}
				v = args[idx]
			default:
				kv, ok := kwargs[name]
				if !ok {
					return nil, runtimeErr(p, fmt.Sprintf("format key '%s' not found", name))
				}
				v = kv
			}

			text, err := applyFormatSpec(p, v, spec)
			if err != nil {
				return nil, err
			}
			sb.WriteString(text)
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return nil, runtimeErr(p, "single '}' encountered in format string")
		default:
			sb.WriteRune(r)
		}
	}
	return strValue(sb.String()), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// applyFormatSpec handles the subset of format specs the language supports:
// none, ".Nf" float precision, and "d".
func applyFormatSpec(p pos, v Value, spec string) (string, error) {
	switch {
	case spec == "":
		return pyStr(v), nil
	case spec == "d":
		n, ok := asInt(v)
		if !ok {
			return "", runtimeErr(p, fmt.Sprintf("unknown format code 'd' for object of type '%s'", v.typeName()))
		}
		return strconv.FormatInt(n, 10), nil
	case strings.HasPrefix(spec, ".") && strings.HasSuffix(spec, "f"):
		digits := spec[1 : len(spec)-1]
		if !isDigits(digits) {
			return "", runtimeErr(p, fmt.Sprintf("invalid format specifier '%s'", spec))
		}
		f, ok := asFloat(v)
		if !ok {
			return "", runtimeErr(p, fmt.Sprintf("unknown format code 'f' for object of type '%s'", v.typeName()))
		}
		prec, _ := strconv.Atoi(digits)
		return strconv.FormatFloat(f, 'f', prec, 64), nil
	default:
		return "", runtimeErr(p, fmt.Sprintf("invalid format specifier '%s'", spec))
	}
}
