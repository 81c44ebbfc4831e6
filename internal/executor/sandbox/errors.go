package sandbox

import "github.com/makolabs/mako/internal/executor"

// scriptError is the engine's internal error currency. Lexing, parsing,
// validation, and evaluation all report failures as *scriptError; the Runner
// converts it to an executor.StructuredError at the boundary. Keeping one
// concrete type end to end means position info survives every layer.
type scriptError struct {
	kind executor.ErrorKind
	msg  string
	pos  pos
}

func (e *scriptError) Error() string { return e.msg }

func syntaxErr(p pos, msg string) *scriptError {
	return &scriptError{kind: executor.KindSyntax, msg: msg, pos: p}
}

func importErr(p pos, msg string) *scriptError {
	return &scriptError{kind: executor.KindImport, msg: msg, pos: p}
}

func runtimeErr(p pos, msg string) *scriptError {
	return &scriptError{kind: executor.KindRuntime, msg: msg, pos: p}
}

func timeoutErr(msg string) *scriptError {
	return &scriptError{kind: executor.KindTimeout, msg: msg}
}

// structured converts the internal error to the boundary type.
func (e *scriptError) structured() *executor.StructuredError {
	return &executor.StructuredError{
		Kind:    e.kind,
		Message: e.msg,
		Line:    e.pos.Line,
		Column:  e.pos.Col,
	}
}

// Control-flow sentinels. return/break/continue unwind the evaluator through
// ordinary error returns; they are intercepted by the construct that owns
// them and never escape a snippet (the parser rejects them at top level,
// and the interpreter double-checks).
type returnSignal struct{ value Value }

func (returnSignal) Error() string { return "return outside function" }

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }
