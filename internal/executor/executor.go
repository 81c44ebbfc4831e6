// Package executor defines the contract between the HTTP boundary and the
// code execution engine: the request/result types that cross that boundary
// and the Executor interface the engine implements.
//
// The result types form the trust boundary for user code. Everything a
// snippet does wrong — bad syntax, a denied import, a runtime fault, a
// timeout — is folded into ExecutionResult.Error and travels back to the
// client as ordinary data. The error return of Execute is reserved for the
// engine itself malfunctioning (an internal fault), which is the only case
// the HTTP layer may turn into a 5xx.
package executor

import (
	"context"
	"time"
)

// ErrorKind classifies what went wrong with a snippet. The four kinds below
// are user-facing; they always arrive inside a 200 response.
type ErrorKind string

const (
	// KindSyntax: the source failed to parse, or used a construct the
	// restricted grammar forbids.
	KindSyntax ErrorKind = "SyntaxError"
	// KindImport: the source imports a module outside the allow-list.
	KindImport ErrorKind = "ImportError"
	// KindRuntime: the snippet raised during execution (division by zero,
	// undefined name, bad operand types, ...).
	KindRuntime ErrorKind = "RuntimeFailure"
	// KindTimeout: the snippet exceeded its wall-clock budget and was aborted.
	KindTimeout ErrorKind = "Timeout"
)

// StructuredError is the typed, serializable record that replaces raw host
// exceptions at the trust boundary. Line and Column are 1-based and refer to
// the submitted source; they are zero when no location applies (timeouts).
type StructuredError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
}

// Error implements the error interface so a StructuredError can flow through
// ordinary error plumbing inside the engine before it is attached to a result.
func (e *StructuredError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ExecutionRequest carries one snippet of user source. Ephemeral: one per
// call, never persisted.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult is the immutable outcome of one execution.
//
// Invariant: Success == (Error == nil). Stdout and Stderr always carry
// whatever the snippet produced before it finished or failed — partial
// output is preserved deliberately so users see progress before an error.
type ExecutionResult struct {
	Success  bool             `json:"success"`
	Stdout   string           `json:"stdout"`
	Stderr   string           `json:"stderr"`
	Duration time.Duration    `json:"duration"`
	Error    *StructuredError `json:"error,omitempty"`
}

// Succeeded constructs a successful result. Using constructors (rather than
// struct literals scattered around the engine) is what enforces the
// Success == (Error == nil) invariant.
func Succeeded(stdout, stderr string, d time.Duration) *ExecutionResult {
	return &ExecutionResult{
		Success:  true,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: d,
	}
}

// Failed constructs a failed result carrying the structured error and any
// partial output captured before the failure.
func Failed(serr *StructuredError, stdout, stderr string, d time.Duration) *ExecutionResult {
	return &ExecutionResult{
		Success:  false,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: d,
		Error:    serr,
	}
}

// Executor runs untrusted source in a restricted environment. Implementations
// must be safe for concurrent use: requests share nothing but read-only
// allow-lists. A non-nil error means the executor itself failed before or
// outside user code — never a user-code problem.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
