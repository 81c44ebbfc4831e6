// Package sandbox implements the restricted script engine behind /execute.
//
// It runs "Mako script", a small Python-flavored analytics language, entirely
// in-process: lexer → parser → AST validation → tree-walking interpreter.
// There is no embedded general-purpose interpreter to escape from; the
// language surface itself is the sandbox.
//
// What executed code can never do:
//   - touch the filesystem, network, or process table (no such builtins or
//     modules exist; the one write capability is the datasets module, which
//     is path-confined to the configured dataset directory)
//   - import anything outside the static module allow-list (default deny)
//   - reach host internals through reflection-style constructs (underscore
//     attributes, eval/exec and friends are rejected before execution)
//   - run forever or flood memory (wall-clock timeout, step budget,
//     recursion limit, capped output buffers)
//
// Every user-visible failure is converted to an executor.StructuredError and
// returned inside an ExecutionResult; nothing user code does propagates as a
// Go error or panic past the Runner boundary.
package sandbox
