package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makolabs/mako/internal/executor"
)

// Runner executes snippets with the embedded interpreter and implements
// executor.Executor. It is safe for concurrent use: each execution gets its
// own interpreter, and the shared builtin and module tables are read-only
// after construction.
type Runner struct {
	cfg      Config
	builtins map[string]Value
	registry *registry
	slots    chan struct{}
	logger   *slog.Logger
}

// New builds a Runner. datasets and functions may be nil, in which case the
// corresponding modules are simply absent from the import allow-list.
func New(cfg Config, logger *slog.Logger, datasets DatasetAPI, functions FunctionSource) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.MaxRecursion <= 0 {
		cfg.MaxRecursion = def.MaxRecursion
	}
	if logger == nil {
		logger = slog.Default()
	}

	reg := newRegistry()
	if datasets != nil {
		reg.register("datasets", datasetsBuilder(datasets))
	}
	if functions != nil {
		reg.register("funcs", funcsBuilder(functions))
	}

	return &Runner{
		cfg:      cfg,
		builtins: newBuiltins(),
		registry: reg,
		slots:    make(chan struct{}, cfg.MaxConcurrent),
		logger:   logger,
	}
}

// Execute parses, validates, and runs one snippet. The returned error is
// non-nil only for internal faults; everything user code did wrong comes back
// inside the result.
func (r *Runner) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// Parse and statically validate before any user code runs, so a snippet
	// like `import os; os.system("ls")` is rejected with zero side effects.
	prog, perr := parse(req.Code)
	if perr != nil {
		return executor.Failed(perr.structured(), "", "", time.Since(start)), nil
	}
	if verr := firstViolation(prog, r.registry.allowed); verr != nil {
		return executor.Failed(verr.structured(), "", "", time.Since(start)), nil
	}

	stdout := newCappedWriter(r.cfg.MaxOutputBytes)
	stderr := newCappedWriter(r.cfg.MaxOutputBytes)
	in := newInterp(ctx, stdout, r.builtins, r.registry,
		r.cfg.MaxSteps, r.cfg.MaxRecursion,
		fmt.Sprintf("execution timed out after %s", r.cfg.Timeout))

	err := r.runProgram(in, prog)
	duration := time.Since(start)

	if err != nil {
		var serr *scriptError
		switch {
		case errors.As(err, &serr):
		case errors.Is(err, errOutputLimit):
			serr = runtimeErr(pos{}, "output limit exceeded")
		case ctx.Err() != nil:
			serr = timeoutErr(fmt.Sprintf("execution timed out after %s", r.cfg.Timeout))
		default:
			r.logger.Error("execution failed internally", slog.String("error", err.Error()))
			return nil, err
		}
		r.logger.Debug("execution failed",
			slog.String("kind", string(serr.kind)),
			slog.Duration("duration", duration))
		return executor.Failed(serr.structured(), stdout.String(), stderr.String(), duration), nil
	}

	r.logger.Debug("execution finished", slog.Duration("duration", duration))
	return executor.Succeeded(stdout.String(), stderr.String(), duration), nil
}

// runProgram isolates interpreter panics: a bug in the engine must surface as
// an internal fault, never crash the server or masquerade as a user error.
func (r *Runner) runProgram(in *interp, prog *program) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("interpreter panic: %v", rec)
		}
	}()
	return in.run(prog)
}

// Lint statically checks source without executing it and reports every
// problem found, not just the first.
func (r *Runner) Lint(source string) []Diagnostic {
	prog, perr := parse(source)
	if perr != nil {
		return []Diagnostic{{
			Line:    perr.pos.Line,
			Column:  perr.pos.Col,
			Message: perr.msg,
			Code:    codeSyntax,
		}}
	}
	vs := analyze(prog, r.registry.allowed)
	out := make([]Diagnostic, 0, len(vs))
	for _, v := range vs {
		out = append(out, Diagnostic{
			Line:    v.p.Line,
			Column:  v.p.Col,
			Message: v.msg,
			Code:    v.code,
		})
	}
	return out
}

// Modules reports the import allow-list. Order is not guaranteed.
func (r *Runner) Modules() []string {
	out := make([]string, 0, len(r.registry.builders))
	for name := range r.registry.builders {
		out = append(out, name)
	}
	return out
}
