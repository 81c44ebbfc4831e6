package sandbox

// env is one lexical scope: a name table with a pointer to the enclosing
// scope. The chain bottoms out at the builtins scope, which is shared and
// read-only; everything above it is owned by a single execution, so no
// locking is needed anywhere.
type env struct {
	vars   map[string]Value
	parent *env
}

func newEnv(parent *env) *env {
	return &env{vars: map[string]Value{}, parent: parent}
}

// define binds a name in this scope, shadowing any outer binding.
func (e *env) define(name string, v Value) {
	e.vars[name] = v
}

// lookup walks the scope chain.
func (e *env) lookup(name string) (Value, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// assign rebinds an existing name where it is bound, or defines it locally
// when unbound anywhere. Function bodies therefore update enclosing bindings
// they can see, and create locals otherwise.
func (e *env) assign(name string, v Value) {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			return
		}
	}
	e.vars[name] = v
}
