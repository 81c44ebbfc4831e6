package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
)

// errStopIteration is returned by an iterate callback to stop cleanly.
var errStopIteration = errors.New("stop iteration")

// ctxCheckMask throttles context polling to every 1024 steps so tight loops
// do not pay a channel select per statement.
const ctxCheckMask = 0x3ff

// interp is the mutable state of a single execution. It is goroutine-local:
// the Runner builds a fresh one per request, so nothing here is locked.
type interp struct {
	ctx      context.Context
	stdout   io.Writer
	builtins map[string]Value
	registry *registry
	globals  *env

	modules   map[string]*moduleValue
	importing map[string]bool
	rng       *rand.Rand

	steps      int64
	maxSteps   int64
	callDepth  int
	maxDepth   int
	timeoutMsg string
}

func newInterp(ctx context.Context, stdout io.Writer, builtins map[string]Value, reg *registry, maxSteps int64, maxDepth int, timeoutMsg string) *interp {
	return &interp{
		ctx:        ctx,
		stdout:     stdout,
		builtins:   builtins,
		registry:   reg,
		globals:    newEnv(nil),
		modules:    map[string]*moduleValue{},
		importing:  map[string]bool{},
		maxSteps:   maxSteps,
		maxDepth:   maxDepth,
		timeoutMsg: timeoutMsg,
	}
}

func (in *interp) run(prog *program) error {
	for _, s := range prog.Stmts {
		if err := in.execStmt(s, in.globals); err != nil {
			return err
		}
	}
	return nil
}

// tick charges one step against the budget and periodically polls the
// request context. Every statement, loop iteration, and call goes through
// here, which is what makes `while True: pass` interruptible.
func (in *interp) tick(p pos) error {
	in.steps++
	if in.steps&ctxCheckMask == 0 {
		select {
		case <-in.ctx.Done():
			return timeoutErr(in.timeoutMsg)
		default:
		}
	}
	if in.maxSteps > 0 && in.steps > in.maxSteps {
		return runtimeErr(p, "execution step limit exceeded")
	}
	return nil
}

// checkSize rejects materializing sequences the step budget could never
// consume, so list(range(10**18)) fails fast instead of exhausting memory.
func (in *interp) checkSize(p pos, n int64) error {
	if in.maxSteps > 0 && n > in.maxSteps {
		return runtimeErr(p, fmt.Sprintf("sequence of %d elements is too large to materialize", n))
	}
	return nil
}

// ---- statements ----

func (in *interp) execStmt(s stmt, env *env) error {
	if err := in.tick(s.Pos()); err != nil {
		return err
	}
	switch n := s.(type) {
	case *exprStmt:
		_, err := in.evalExpr(n.X, env)
		return err

	case *assignStmt:
		return in.execAssign(n, env)

	case *augAssignStmt:
		return in.execAugAssign(n, env)

	case *ifStmt:
		cond, err := in.evalExpr(n.Cond, env)
		if err != nil {
			return err
		}
		if truthy(cond) {
			return in.execBlock(n.Body, env)
		}
		return in.execBlock(n.Else, env)

	case *whileStmt:
		for {
			cond, err := in.evalExpr(n.Cond, env)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				return nil
			}
			if err := in.execBlock(n.Body, env); err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}

	case *forStmt:
		iter, err := in.evalExpr(n.Iter, env)
		if err != nil {
			return err
		}
		return in.iterate(n.P, iter, func(v Value) error {
			if err := in.bindLoopVars(n, v, env); err != nil {
				return err
			}
			if err := in.execBlock(n.Body, env); err != nil {
				if _, ok := err.(breakSignal); ok {
					return errStopIteration
				}
				if _, ok := err.(continueSignal); ok {
					return nil
				}
				return err
			}
			return nil
		})

	case *defStmt:
		defaults := make([]Value, len(n.Params))
		for i, prm := range n.Params {
			if prm.Default != nil {
				v, err := in.evalExpr(prm.Default, env)
				if err != nil {
					return err
				}
				defaults[i] = v
			}
		}
		env.define(n.Name, &funcValue{
			name:     n.Name,
			params:   n.Params,
			defaults: defaults,
			body:     n.Body,
			env:      env,
		})
		return nil

	case *returnStmt:
		var v Value = valNone
		if n.Value != nil {
			r, err := in.evalExpr(n.Value, env)
			if err != nil {
				return err
			}
			v = r
		}
		return returnSignal{value: v}

	case *importStmt:
		m, err := in.importModule(n.P, n.Module)
		if err != nil {
			return err
		}
		name := n.Module
		if n.Alias != "" {
			name = n.Alias
		}
		env.define(name, m)
		return nil

	case *fromImportStmt:
		m, err := in.importModule(n.P, n.Module)
		if err != nil {
			return err
		}
		for _, imp := range n.Names {
			v, ok := m.attrs[imp.Name]
			if !ok {
				return importErr(n.P, fmt.Sprintf("cannot import name '%s' from '%s'", imp.Name, n.Module))
			}
			name := imp.Name
			if imp.Alias != "" {
				name = imp.Alias
			}
			env.define(name, v)
		}
		return nil

	case *passStmt:
		return nil

	case *breakStmt:
		return breakSignal{}

	case *continueStmt:
		return continueSignal{}

	default:
		return fmt.Errorf("unhandled statement %T", s)
	}
}

func (in *interp) execBlock(stmts []stmt, env *env) error {
	for _, s := range stmts {
		if err := in.execStmt(s, env); err != nil {
			return err
		}
	}
	return nil
}

func (in *interp) execAssign(n *assignStmt, env *env) error {
	v, err := in.evalExpr(n.Value, env)
	if err != nil {
		return err
	}
	if len(n.Targets) == 1 {
		return in.assignTo(n.Targets[0], v, env)
	}
	items, err := in.unpack(n.P, v, len(n.Targets))
	if err != nil {
		return err
	}
	for i, t := range n.Targets {
		if err := in.assignTo(t, items[i], env); err != nil {
			return err
		}
	}
	return nil
}

// unpack splits v into exactly want values for tuple assignment and for-loop
// variable binding.
func (in *interp) unpack(p pos, v Value, want int) ([]Value, error) {
	var items []Value
	switch s := v.(type) {
	case *listValue:
		items = s.items
	case *tupleValue:
		items = s.items
	case strValue:
		for _, r := range string(s) {
			items = append(items, strValue(r))
		}
	case rangeValue:
		if err := in.checkSize(p, s.len()); err != nil {
			return nil, err
		}
		for i := int64(0); i < s.len(); i++ {
			items = append(items, intValue(s.at(i)))
		}
	default:
		return nil, runtimeErr(p, fmt.Sprintf("cannot unpack non-sequence '%s'", v.typeName()))
	}
	if len(items) < want {
		return nil, runtimeErr(p, fmt.Sprintf("not enough values to unpack (expected %d, got %d)", want, len(items)))
	}
	if len(items) > want {
		return nil, runtimeErr(p, fmt.Sprintf("too many values to unpack (expected %d)", want))
	}
	return items, nil
}

func (in *interp) assignTo(target expr, v Value, env *env) error {
	switch t := target.(type) {
	case *nameExpr:
		env.assign(t.Ident, v)
		return nil
	case *indexExpr:
		obj, err := in.evalExpr(t.X, env)
		if err != nil {
			return err
		}
		idx, err := in.evalExpr(t.Index, env)
		if err != nil {
			return err
		}
		return in.setIndex(t.P, obj, idx, v)
	case *attrExpr:
		return runtimeErr(t.P, "attribute assignment is not supported")
	default:
		return runtimeErr(target.Pos(), "cannot assign to this expression")
	}
}

func (in *interp) execAugAssign(n *augAssignStmt, env *env) error {
	rhs, err := in.evalExpr(n.Value, env)
	if err != nil {
		return err
	}
	cur, err := in.evalExpr(n.Target, env)
	if err != nil {
		return err
	}
	// x += [..] extends in place so aliases observe the update.
	if n.Op == opAdd {
		if lst, ok := cur.(*listValue); ok {
			add, ok := rhs.(*listValue)
			if !ok {
				return runtimeErr(n.P, fmt.Sprintf(`can only concatenate list (not "%s") to list`, rhs.typeName()))
			}
			lst.items = append(lst.items, add.items...)
			return nil
		}
	}
	v, err := in.binaryOp(n.P, n.Op, cur, rhs)
	if err != nil {
		return err
	}
	return in.assignTo(n.Target, v, env)
}

func (in *interp) bindLoopVars(n *forStmt, v Value, env *env) error {
	if len(n.Vars) == 1 {
		env.assign(n.Vars[0], v)
		return nil
	}
	items, err := in.unpack(n.P, v, len(n.Vars))
	if err != nil {
		return err
	}
	for i, name := range n.Vars {
		env.assign(name, items[i])
	}
	return nil
}

func (in *interp) importModule(p pos, name string) (*moduleValue, error) {
	if m, ok := in.modules[name]; ok {
		return m, nil
	}
	if in.importing[name] {
		return nil, importErr(p, fmt.Sprintf("circular import of '%s'", name))
	}
	in.importing[name] = true
	m, err := in.registry.build(in, p, name)
	delete(in.importing, name)
	if err != nil {
		return nil, err
	}
	in.modules[name] = m
	return m, nil
}

// ---- iteration ----

// iterate walks any iterable value, charging one step per element. fn may
// return errStopIteration for a clean early exit.
func (in *interp) iterate(p pos, v Value, fn func(Value) error) error {
	err := in.iterateAll(p, v, fn)
	if err == errStopIteration {
		return nil
	}
	return err
}

func (in *interp) iterateAll(p pos, v Value, fn func(Value) error) error {
	switch s := v.(type) {
	case *listValue:
		// Index-based so appends during iteration are seen, like the
		// reference semantics; the step budget bounds self-feeding loops.
		for i := 0; i < len(s.items); i++ {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(s.items[i]); err != nil {
				return err
			}
		}
		return nil
	case *tupleValue:
		for _, item := range s.items {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case strValue:
		for _, r := range string(s) {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(strValue(r)); err != nil {
				return err
			}
		}
		return nil
	case rangeValue:
		n := s.len()
		for i := int64(0); i < n; i++ {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(intValue(s.at(i))); err != nil {
				return err
			}
		}
		return nil
	case *dictValue:
		for _, e := range s.items() {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(e.key); err != nil {
				return err
			}
		}
		return nil
	case *frameValue:
		for _, name := range s.f.ColumnNames() {
			if err := in.tick(p); err != nil {
				return err
			}
			if err := fn(strValue(name)); err != nil {
				return err
			}
		}
		return nil
	default:
		return notIterable(p, v)
	}
}

// ---- expressions ----

func (in *interp) evalExpr(e expr, env *env) (Value, error) {
	switch n := e.(type) {
	case *nameExpr:
		if v, ok := env.lookup(n.Ident); ok {
			return v, nil
		}
		if v, ok := in.builtins[n.Ident]; ok {
			return v, nil
		}
		return nil, runtimeErr(n.P, fmt.Sprintf("name '%s' is not defined", n.Ident))

	case *intLit:
		return intValue(n.Value), nil
	case *floatLit:
		return floatValue(n.Value), nil
	case *strLit:
		return strValue(n.Value), nil
	case *boolLit:
		return boolOf(n.Value), nil
	case *noneLit:
		return valNone, nil

	case *listLit:
		items, err := in.evalExprs(n.Elems, env)
		if err != nil {
			return nil, err
		}
		return &listValue{items: items}, nil

	case *tupleLit:
		items, err := in.evalExprs(n.Elems, env)
		if err != nil {
			return nil, err
		}
		return &tupleValue{items: items}, nil

	case *dictLit:
		d := newDict()
		for i := range n.Keys {
			k, err := in.evalExpr(n.Keys[i], env)
			if err != nil {
				return nil, err
			}
			v, err := in.evalExpr(n.Values[i], env)
			if err != nil {
				return nil, err
			}
			if !d.set(k, v) {
				return nil, runtimeErr(n.Keys[i].Pos(), fmt.Sprintf("unhashable type: '%s'", k.typeName()))
			}
		}
		return d, nil

	case *unaryExpr:
		x, err := in.evalExpr(n.X, env)
		if err != nil {
			return nil, err
		}
		if n.Neg {
			return boolOf(!truthy(x)), nil
		}
		return in.unaryOp(n.P, n.Op, x)

	case *binaryExpr:
		if n.Op == opAnd || n.Op == opOr {
			l, err := in.evalExpr(n.L, env)
			if err != nil {
				return nil, err
			}
			if n.Op == opAnd && !truthy(l) {
				return l, nil
			}
			if n.Op == opOr && truthy(l) {
				return l, nil
			}
			return in.evalExpr(n.R, env)
		}
		l, err := in.evalExpr(n.L, env)
		if err != nil {
			return nil, err
		}
		r, err := in.evalExpr(n.R, env)
		if err != nil {
			return nil, err
		}
		return in.binaryOp(n.P, n.Op, l, r)

	case *callExpr:
		fn, err := in.evalExpr(n.Fn, env)
		if err != nil {
			return nil, err
		}
		args, err := in.evalExprs(n.Args, env)
		if err != nil {
			return nil, err
		}
		var kwargs map[string]Value
		if len(n.Kwargs) > 0 {
			kwargs = make(map[string]Value, len(n.Kwargs))
			for _, kw := range n.Kwargs {
				v, err := in.evalExpr(kw.Value, env)
				if err != nil {
					return nil, err
				}
				kwargs[kw.Name] = v
			}
		}
		return in.callValue(n.P, fn, args, kwargs)

	case *attrExpr:
		x, err := in.evalExpr(n.X, env)
		if err != nil {
			return nil, err
		}
		return in.getAttr(n.P, x, n.Name)

	case *indexExpr:
		x, err := in.evalExpr(n.X, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.evalExpr(n.Index, env)
		if err != nil {
			return nil, err
		}
		return in.getIndex(n.P, x, idx)

	case *sliceExpr:
		x, err := in.evalExpr(n.X, env)
		if err != nil {
			return nil, err
		}
		var lo, hi Value
		if n.Lo != nil {
			if lo, err = in.evalExpr(n.Lo, env); err != nil {
				return nil, err
			}
		}
		if n.Hi != nil {
			if hi, err = in.evalExpr(n.Hi, env); err != nil {
				return nil, err
			}
		}
		return in.getSlice(n.P, x, lo, hi)

	default:
		return nil, fmt.Errorf("unhandled expression %T", e)
	}
}

func (in *interp) evalExprs(es []expr, env *env) ([]Value, error) {
	if len(es) == 0 {
		return nil, nil
	}
	out := make([]Value, len(es))
	for i, e := range es {
		v, err := in.evalExpr(e, env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---- calls ----

func (in *interp) callValue(p pos, fn Value, args []Value, kwargs map[string]Value) (Value, error) {
	if err := in.tick(p); err != nil {
		return nil, err
	}
	switch f := fn.(type) {
	case *builtinValue:
		return f.fn(in, p, args, kwargs)
	case *funcValue:
		return in.callFunction(p, f, args, kwargs)
	default:
		return nil, runtimeErr(p, fmt.Sprintf("'%s' object is not callable", fn.typeName()))
	}
}

func (in *interp) callFunction(p pos, f *funcValue, args []Value, kwargs map[string]Value) (Value, error) {
	if in.callDepth >= in.maxDepth {
		return nil, runtimeErr(p, "maximum recursion depth exceeded")
	}
	in.callDepth++
	defer func() { in.callDepth-- }()

	if len(args) > len(f.params) {
		plural := "arguments"
		if len(f.params) == 1 {
			plural = "argument"
		}
		return nil, runtimeErr(p, fmt.Sprintf("%s() takes %d positional %s but %d were given",
			f.name, len(f.params), plural, len(args)))
	}

	local := newEnv(f.env)
	used := 0
	for i, prm := range f.params {
		if i < len(args) {
			if _, dup := kwargs[prm.Name]; dup {
				return nil, runtimeErr(p, fmt.Sprintf("%s() got multiple values for argument '%s'", f.name, prm.Name))
			}
			local.define(prm.Name, args[i])
			continue
		}
		if v, ok := kwargs[prm.Name]; ok {
			local.define(prm.Name, v)
			used++
			continue
		}
		if f.defaults[i] != nil {
			local.define(prm.Name, f.defaults[i])
			continue
		}
		return nil, runtimeErr(p, fmt.Sprintf("%s() missing 1 required positional argument: '%s'", f.name, prm.Name))
	}
	if used < len(kwargs) {
		for k := range kwargs {
			known := false
			for _, prm := range f.params {
				if prm.Name == k {
					known = true
					break
				}
			}
			if !known {
				return nil, runtimeErr(p, fmt.Sprintf("%s() got an unexpected keyword argument '%s'", f.name, k))
			}
		}
	}

	for _, s := range f.body {
		if err := in.execStmt(s, local); err != nil {
			if ret, ok := err.(returnSignal); ok {
				return ret.value, nil
			}
			return nil, err
		}
	}
	return valNone, nil
}

// ---- operators ----

func (in *interp) unaryOp(p pos, op opKind, x Value) (Value, error) {
	switch op {
	case opSub:
		switch v := x.(type) {
		case intValue:
			if v == math.MinInt64 {
				return nil, runtimeErr(p, "integer overflow")
			}
			return -v, nil
		case boolValue:
			if v {
				return intValue(-1), nil
			}
			return intValue(0), nil
		case floatValue:
			return -v, nil
		}
		return nil, runtimeErr(p, fmt.Sprintf("bad operand type for unary -: '%s'", x.typeName()))
	case opAdd:
		if isNumber(x) {
			return x, nil
		}
		return nil, runtimeErr(p, fmt.Sprintf("bad operand type for unary +: '%s'", x.typeName()))
	default:
		return nil, runtimeErr(p, fmt.Sprintf("bad unary operator '%s'", op))
	}
}

func (in *interp) binaryOp(p pos, op opKind, l, r Value) (Value, error) {
	switch op {
	case opEq:
		return boolOf(valueEq(l, r)), nil
	case opNe:
		return boolOf(!valueEq(l, r)), nil
	case opLt, opLe, opGt, opGe:
		c, ok := compareValues(l, r)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
				op, l.typeName(), r.typeName()))
		}
		switch op {
		case opLt:
			return boolOf(c < 0), nil
		case opLe:
			return boolOf(c <= 0), nil
		case opGt:
			return boolOf(c > 0), nil
		default:
			return boolOf(c >= 0), nil
		}
	case opIn:
		ok, err := in.contains(p, r, l)
		if err != nil {
			return nil, err
		}
		return boolOf(ok), nil
	case opNotIn:
		ok, err := in.contains(p, r, l)
		if err != nil {
			return nil, err
		}
		return boolOf(!ok), nil
	}

	// String and sequence operators first, then numeric.
	switch op {
	case opAdd:
		switch lv := l.(type) {
		case strValue:
			rv, ok := r.(strValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf(`can only concatenate str (not "%s") to str`, r.typeName()))
			}
			return lv + rv, nil
		case *listValue:
			rv, ok := r.(*listValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf(`can only concatenate list (not "%s") to list`, r.typeName()))
			}
			out := make([]Value, 0, len(lv.items)+len(rv.items))
			out = append(out, lv.items...)
			out = append(out, rv.items...)
			return &listValue{items: out}, nil
		case *tupleValue:
			rv, ok := r.(*tupleValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf(`can only concatenate tuple (not "%s") to tuple`, r.typeName()))
			}
			out := make([]Value, 0, len(lv.items)+len(rv.items))
			out = append(out, lv.items...)
			out = append(out, rv.items...)
			return &tupleValue{items: out}, nil
		}
	case opMul:
		if v, n, ok := repeatOperands(l, r); ok {
			return in.repeatValue(p, v, n)
		}
	case opMod:
		if format, ok := l.(strValue); ok {
			return in.formatPercent(p, string(format), r)
		}
	}

	// Numeric arithmetic.
	li, lIsInt := asInt(l)
	ri, rIsInt := asInt(r)
	if lIsInt && rIsInt {
		return intArith(p, op, li, ri)
	}
	lf, lIsNum := asFloat(l)
	rf, rIsNum := asFloat(r)
	if lIsNum && rIsNum {
		return floatArith(p, op, lf, rf)
	}
	return nil, runtimeErr(p, fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'",
		op, l.typeName(), r.typeName()))
}

// repeatOperands matches seq*int and int*seq.
func repeatOperands(l, r Value) (Value, int64, bool) {
	if n, ok := asInt(r); ok {
		switch l.(type) {
		case strValue, *listValue, *tupleValue:
			return l, n, true
		}
	}
	if n, ok := asInt(l); ok {
		switch r.(type) {
		case strValue, *listValue, *tupleValue:
			return r, n, true
		}
	}
	return nil, 0, false
}

func (in *interp) repeatValue(p pos, v Value, n int64) (Value, error) {
	if n < 0 {
		n = 0
	}
	switch s := v.(type) {
	case strValue:
		if err := in.checkSize(p, int64(len(s))*n); err != nil {
			return nil, err
		}
		var sb []byte
		for i := int64(0); i < n; i++ {
			sb = append(sb, s...)
		}
		return strValue(sb), nil
	case *listValue:
		if err := in.checkSize(p, int64(len(s.items))*n); err != nil {
			return nil, err
		}
		out := make([]Value, 0, int64(len(s.items))*n)
		for i := int64(0); i < n; i++ {
			out = append(out, s.items...)
		}
		return &listValue{items: out}, nil
	case *tupleValue:
		if err := in.checkSize(p, int64(len(s.items))*n); err != nil {
			return nil, err
		}
		out := make([]Value, 0, int64(len(s.items))*n)
		for i := int64(0); i < n; i++ {
			out = append(out, s.items...)
		}
		return &tupleValue{items: out}, nil
	}
	return nil, runtimeErr(p, "cannot repeat this value")
}

func intArith(p pos, op opKind, a, b int64) (Value, error) {
	switch op {
	case opAdd:
		s := a + b
		if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
			return nil, runtimeErr(p, "integer overflow")
		}
		return intValue(s), nil
	case opSub:
		s := a - b
		if (a >= 0 && b < 0 && s < 0) || (a < 0 && b > 0 && s >= 0) {
			return nil, runtimeErr(p, "integer overflow")
		}
		return intValue(s), nil
	case opMul:
		if a == 0 || b == 0 {
			return intValue(0), nil
		}
		s := a * b
		if s/b != a || (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
			return nil, runtimeErr(p, "integer overflow")
		}
		return intValue(s), nil
	case opDiv:
		if b == 0 {
			return nil, runtimeErr(p, "division by zero")
		}
		// True division always yields a float.
		return floatValue(float64(a) / float64(b)), nil
	case opFloorDiv:
		if b == 0 {
			return nil, runtimeErr(p, "integer division or modulo by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return intValue(q), nil
	case opMod:
		if b == 0 {
			return nil, runtimeErr(p, "integer division or modulo by zero")
		}
		m := a % b
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return intValue(m), nil
	case opPow:
		return intPow(p, a, b)
	default:
		return nil, runtimeErr(p, fmt.Sprintf("unsupported operand type(s) for %s: 'int' and 'int'", op))
	}
}

func intPow(p pos, base, exp int64) (Value, error) {
	if exp < 0 {
		if base == 0 {
			return nil, runtimeErr(p, "0.0 cannot be raised to a negative power")
		}
		return floatValue(math.Pow(float64(base), float64(exp))), nil
	}
	switch base {
	case 0:
		if exp == 0 {
			return intValue(1), nil
		}
		return intValue(0), nil
	case 1:
		return intValue(1), nil
	case -1:
		if exp%2 == 0 {
			return intValue(1), nil
		}
		return intValue(-1), nil
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		r, err := intArith(p, opMul, result, base)
		if err != nil {
			return nil, err
		}
		result = int64(r.(intValue))
	}
	return intValue(result), nil
}

func floatArith(p pos, op opKind, a, b float64) (Value, error) {
	switch op {
	case opAdd:
		return floatValue(a + b), nil
	case opSub:
		return floatValue(a - b), nil
	case opMul:
		return floatValue(a * b), nil
	case opDiv:
		if b == 0 {
			return nil, runtimeErr(p, "float division by zero")
		}
		return floatValue(a / b), nil
	case opFloorDiv:
		if b == 0 {
			return nil, runtimeErr(p, "float floor division by zero")
		}
		return floatValue(math.Floor(a / b)), nil
	case opMod:
		if b == 0 {
			return nil, runtimeErr(p, "float modulo")
		}
		m := math.Mod(a, b)
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return floatValue(m), nil
	case opPow:
		r := math.Pow(a, b)
		if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
			return nil, runtimeErr(p, "math domain error")
		}
		return floatValue(r), nil
	default:
		return nil, runtimeErr(p, fmt.Sprintf("unsupported operand type(s) for %s: 'float' and 'float'", op))
	}
}

func (in *interp) contains(p pos, container, item Value) (bool, error) {
	switch c := container.(type) {
	case strValue:
		s, ok := item.(strValue)
		if !ok {
			return false, runtimeErr(p, fmt.Sprintf("'in <string>' requires string as left operand, not %s", item.typeName()))
		}
		return strings.Contains(string(c), string(s)), nil
	case *listValue:
		for _, v := range c.items {
			if valueEq(v, item) {
				return true, nil
			}
		}
		return false, nil
	case *tupleValue:
		for _, v := range c.items {
			if valueEq(v, item) {
				return true, nil
			}
		}
		return false, nil
	case *dictValue:
		_, found, hashable := c.get(item)
		if !hashable {
			return false, runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", item.typeName()))
		}
		return found, nil
	case rangeValue:
		n, ok := asInt(item)
		if !ok {
			return false, nil
		}
		return c.contains(n), nil
	default:
		return false, runtimeErr(p, fmt.Sprintf("argument of type '%s' is not iterable", container.typeName()))
	}
}

// ---- subscripts and attributes ----

// normIndex resolves a possibly-negative index against length n; -1 means out
// of range.
func normIndex(i int64, n int) int {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return -1
	}
	return int(i)
}

func (in *interp) getIndex(p pos, obj, idx Value) (Value, error) {
	switch o := obj.(type) {
	case *listValue:
		i, ok := asInt(idx)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("list indices must be integers, not %s", idx.typeName()))
		}
		n := normIndex(i, len(o.items))
		if n < 0 {
			return nil, runtimeErr(p, "list index out of range")
		}
		return o.items[n], nil
	case *tupleValue:
		i, ok := asInt(idx)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("tuple indices must be integers, not %s", idx.typeName()))
		}
		n := normIndex(i, len(o.items))
		if n < 0 {
			return nil, runtimeErr(p, "tuple index out of range")
		}
		return o.items[n], nil
	case strValue:
		i, ok := asInt(idx)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("string indices must be integers, not %s", idx.typeName()))
		}
		runes := []rune(string(o))
		n := normIndex(i, len(runes))
		if n < 0 {
			return nil, runtimeErr(p, "string index out of range")
		}
		return strValue(runes[n]), nil
	case *dictValue:
		v, found, hashable := o.get(idx)
		if !hashable {
			return nil, runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", idx.typeName()))
		}
		if !found {
			return nil, runtimeErr(p, fmt.Sprintf("key %s not found", pyRepr(idx)))
		}
		return v, nil
	case rangeValue:
		i, ok := asInt(idx)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("range indices must be integers, not %s", idx.typeName()))
		}
		n := o.len()
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, runtimeErr(p, "range object index out of range")
		}
		return intValue(o.at(i)), nil
	case *frameValue:
		name, ok := idx.(strValue)
		if !ok {
			return nil, runtimeErr(p, fmt.Sprintf("frame columns are selected by name, not %s", idx.typeName()))
		}
		return frameColumn(p, o.f, string(name))
	default:
		return nil, runtimeErr(p, fmt.Sprintf("'%s' object is not subscriptable", obj.typeName()))
	}
}

func (in *interp) setIndex(p pos, obj, idx, v Value) error {
	switch o := obj.(type) {
	case *listValue:
		i, ok := asInt(idx)
		if !ok {
			return runtimeErr(p, fmt.Sprintf("list indices must be integers, not %s", idx.typeName()))
		}
		n := normIndex(i, len(o.items))
		if n < 0 {
			return runtimeErr(p, "list assignment index out of range")
		}
		o.items[n] = v
		return nil
	case *dictValue:
		if !o.set(idx, v) {
			return runtimeErr(p, fmt.Sprintf("unhashable type: '%s'", idx.typeName()))
		}
		return nil
	default:
		return runtimeErr(p, fmt.Sprintf("'%s' object does not support item assignment", obj.typeName()))
	}
}

// sliceBounds resolves optional lo/hi values against length n with clamping.
func sliceBounds(p pos, lo, hi Value, n int) (int, int, error) {
	start, end := int64(0), int64(n)
	if lo != nil {
		i, ok := asInt(lo)
		if !ok {
			return 0, 0, runtimeErr(p, "slice indices must be integers or None")
		}
		start = i
	}
	if hi != nil {
		i, ok := asInt(hi)
		if !ok {
			return 0, 0, runtimeErr(p, "slice indices must be integers or None")
		}
		end = i
	}
	if start < 0 {
		start += int64(n)
	}
	if end < 0 {
		end += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if end > int64(n) {
		end = int64(n)
	}
	if start > int64(n) {
		start = int64(n)
	}
	if end < start {
		end = start
	}
	return int(start), int(end), nil
}

func (in *interp) getSlice(p pos, obj, lo, hi Value) (Value, error) {
	switch o := obj.(type) {
	case strValue:
		runes := []rune(string(o))
		s, e, err := sliceBounds(p, lo, hi, len(runes))
		if err != nil {
			return nil, err
		}
		return strValue(runes[s:e]), nil
	case *listValue:
		s, e, err := sliceBounds(p, lo, hi, len(o.items))
		if err != nil {
			return nil, err
		}
		out := make([]Value, e-s)
		copy(out, o.items[s:e])
		return &listValue{items: out}, nil
	case *tupleValue:
		s, e, err := sliceBounds(p, lo, hi, len(o.items))
		if err != nil {
			return nil, err
		}
		out := make([]Value, e-s)
		copy(out, o.items[s:e])
		return &tupleValue{items: out}, nil
	case rangeValue:
		n := o.len()
		if n > int64(math.MaxInt32) {
			n = math.MaxInt32
		}
		s, e, err := sliceBounds(p, lo, hi, int(n))
		if err != nil {
			return nil, err
		}
		return rangeValue{start: o.at(int64(s)), stop: o.at(int64(e)), step: o.step}, nil
	case *frameValue:
		s, e, err := sliceBounds(p, lo, hi, o.f.NumRows())
		if err != nil {
			return nil, err
		}
		return &frameValue{f: o.f.Slice(s, e)}, nil
	default:
		return nil, runtimeErr(p, fmt.Sprintf("'%s' object is not subscriptable", obj.typeName()))
	}
}

func (in *interp) getAttr(p pos, obj Value, name string) (Value, error) {
	if m, ok := obj.(*moduleValue); ok {
		v, found := m.attrs[name]
		if !found {
			return nil, runtimeErr(p, fmt.Sprintf("module '%s' has no attribute '%s'", m.name, name))
		}
		return v, nil
	}
	if fn, ok := lookupMethod(obj, name); ok {
		return fn, nil
	}
	return nil, runtimeErr(p, fmt.Sprintf("'%s' object has no attribute '%s'", obj.typeName(), name))
}
