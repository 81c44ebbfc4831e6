package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// FunctionSource supplies saved user functions as name -> definition source.
// The funcs module is rebuilt from it on every import so edits to the
// function library take effect on the next run without a restart.
type FunctionSource interface {
	Functions(ctx context.Context) (map[string]string, error)
}

// CheckFunctionDef validates source destined for the function registry:
// it must parse, and its top level must be exactly one def naming fnName.
// This is the shape funcsBuilder expects at import time, enforced before
// anything is saved.
func CheckFunctionDef(fnName, source string) error {
	prog, perr := parse(source)
	if perr != nil {
		return fmt.Errorf("syntax error at line %d: %s", perr.pos.Line, perr.msg)
	}

	var def *defStmt
	for _, s := range prog.Stmts {
		d, ok := s.(*defStmt)
		if !ok {
			return fmt.Errorf("line %d: only a function definition is allowed at the top level", s.Pos().Line)
		}
		if def != nil {
			return fmt.Errorf("code must define a single function, found a second def at line %d", d.P.Line)
		}
		def = d
	}
	if def == nil {
		return errors.New("no function definition found in the code")
	}
	if def.Name != fnName {
		return fmt.Errorf("code defines '%s', expected a function named '%s'", def.Name, fnName)
	}
	return nil
}

func funcsBuilder(src FunctionSource) moduleBuilder {
	return func(in *interp, p pos) (*moduleValue, error) {
		defs, err := src.Functions(in.ctx)
		if err != nil {
			return nil, fmt.Errorf("loading saved functions: %w", err)
		}
		names := make([]string, 0, len(defs))
		for name := range defs {
			names = append(names, name)
		}
		sort.Strings(names)

		attrs := map[string]Value{}
		for _, name := range names {
			prog, perr := parse(defs[name])
			if perr != nil {
				return nil, importErr(p, fmt.Sprintf("saved function '%s' is invalid: %s", name, perr.msg))
			}
			// Each definition runs in its own scope so saved functions
			// cannot see script globals or each other's locals.
			scope := newEnv(nil)
			for _, s := range prog.Stmts {
				if err := in.execStmt(s, scope); err != nil {
					if serr, ok := err.(*scriptError); ok {
						return nil, importErr(p, fmt.Sprintf("saved function '%s' is invalid: %s", name, serr.msg))
					}
					return nil, err
				}
			}
			fn, ok := scope.lookup(name)
			if !ok {
				return nil, importErr(p, fmt.Sprintf("saved function '%s' does not define '%s'", name, name))
			}
			attrs[name] = fn
		}
		return module("funcs", attrs), nil
	}
}
