package sandbox

import (
	"fmt"

	"github.com/makolabs/mako/internal/executor"
)

// The analyzer walks a parsed program before anything executes and rejects
// constructs the restricted grammar forbids. Imports are checked here too, so
// a denied import fails before the snippet has any chance to run — scenario:
// `import os; os.system("ls")` must produce ImportError with zero side
// effects, which a purely runtime check could not guarantee.

// forbiddenNames are identifiers whose mere use is rejected. None of them
// exist in the builtin allow-list either; rejecting them statically gives a
// clearer message than the NameError they would otherwise produce, and keeps
// them out even if the builtin table ever grows carelessly.
var forbiddenNames = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"__import__": true,
	"open":       true,
	"input":      true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
}

// Diagnostic is one lint finding with its 1-based source position.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

const (
	codeSyntax     = "E999" // source failed to parse
	codeRestricted = "S100" // construct outside the restricted grammar
	codeImport     = "S101" // module outside the allow-list
)

type violation struct {
	p    pos
	kind executor.ErrorKind
	code string
	msg  string
}

// analyze collects every restricted-grammar and import violation in program
// order. The execute path takes the first; the lint path reports them all.
func analyze(prog *program, allowed func(string) bool) []violation {
	w := &walker{allowed: allowed}
	for _, s := range prog.Stmts {
		w.stmt(s)
	}
	return w.found
}

// firstViolation converts the earliest violation to the engine error type,
// or nil when the program is clean.
func firstViolation(prog *program, allowed func(string) bool) *scriptError {
	vs := analyze(prog, allowed)
	if len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &scriptError{kind: v.kind, msg: v.msg, pos: v.p}
}

type walker struct {
	allowed func(string) bool
	found   []violation
}

func (w *walker) add(p pos, kind executor.ErrorKind, code, msg string) {
	w.found = append(w.found, violation{p: p, kind: kind, code: code, msg: msg})
}

func (w *walker) stmt(s stmt) {
	switch n := s.(type) {
	case *exprStmt:
		w.expr(n.X)
	case *assignStmt:
		for _, t := range n.Targets {
			w.expr(t)
		}
		w.expr(n.Value)
	case *augAssignStmt:
		w.expr(n.Target)
		w.expr(n.Value)
	case *ifStmt:
		w.expr(n.Cond)
		w.block(n.Body)
		w.block(n.Else)
	case *whileStmt:
		w.expr(n.Cond)
		w.block(n.Body)
	case *forStmt:
		w.expr(n.Iter)
		w.block(n.Body)
	case *defStmt:
		for _, p := range n.Params {
			if p.Default != nil {
				w.expr(p.Default)
			}
		}
		w.block(n.Body)
	case *returnStmt:
		if n.Value != nil {
			w.expr(n.Value)
		}
	case *importStmt:
		w.checkImport(n.P, n.Module)
	case *fromImportStmt:
		w.checkImport(n.P, n.Module)
	case *passStmt, *breakStmt, *continueStmt:
	}
}

func (w *walker) block(stmts []stmt) {
	for _, s := range stmts {
		w.stmt(s)
	}
}

func (w *walker) expr(e expr) {
	switch n := e.(type) {
	case *nameExpr:
		if forbiddenNames[n.Ident] {
			w.add(n.P, executor.KindSyntax, codeRestricted,
				fmt.Sprintf("use of '%s' is not allowed", n.Ident))
		}
	case *attrExpr:
		if len(n.Name) > 0 && n.Name[0] == '_' {
			w.add(n.P, executor.KindSyntax, codeRestricted,
				fmt.Sprintf("access to attribute '%s' is not allowed", n.Name))
		}
		w.expr(n.X)
	case *unaryExpr:
		w.expr(n.X)
	case *binaryExpr:
		w.expr(n.L)
		w.expr(n.R)
	case *callExpr:
		w.expr(n.Fn)
		for _, a := range n.Args {
			w.expr(a)
		}
		for _, k := range n.Kwargs {
			w.expr(k.Value)
		}
	case *indexExpr:
		w.expr(n.X)
		w.expr(n.Index)
	case *sliceExpr:
		w.expr(n.X)
		if n.Lo != nil {
			w.expr(n.Lo)
		}
		if n.Hi != nil {
			w.expr(n.Hi)
		}
	case *listLit:
		for _, el := range n.Elems {
			w.expr(el)
		}
	case *tupleLit:
		for _, el := range n.Elems {
			w.expr(el)
		}
	case *dictLit:
		for i := range n.Keys {
			w.expr(n.Keys[i])
			w.expr(n.Values[i])
		}
	case *intLit, *floatLit, *strLit, *boolLit, *noneLit:
	}
}

func (w *walker) checkImport(p pos, module string) {
	if w.allowed != nil && w.allowed(module) {
		return
	}
	w.add(p, executor.KindImport, codeImport,
		fmt.Sprintf("module '%s' is not permitted", module))
}
