package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/executor"
	"github.com/makolabs/mako/internal/executor/sandbox"
	"github.com/makolabs/mako/internal/observability"
	"github.com/makolabs/mako/internal/sqlcell"
)

// Linter statically checks source and reports findings without running it.
// *sandbox.Runner implements it.
type Linter interface {
	Lint(source string) []sandbox.Diagnostic
}

// SQLRunner executes @sql cells. *sqlcell.Engine implements it.
type SQLRunner interface {
	Execute(ctx context.Context, code string) (*executor.ExecutionResult, error)
}

// ExecuteHandler is the execution boundary: it dispatches snippets to the
// sandbox (or the SQL cell engine for @sql sources) and translates results
// to the wire shape. User-code failures stay inside 200 responses; only an
// engine malfunction becomes a 500.
type ExecuteHandler struct {
	exec           executor.Executor
	sql            SQLRunner
	linter         Linter
	maxSourceBytes int
	logger         *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler. maxSourceBytes bounds the
// accepted source size; requests over it are rejected before parsing.
func NewExecuteHandler(exec executor.Executor, sql SQLRunner, linter Linter, maxSourceBytes int, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:           exec,
		sql:            sql,
		linter:         linter,
		maxSourceBytes: maxSourceBytes,
		logger:         logger,
	}
}

// executeResponse is the wire shape of an execution outcome. Output carries
// the snippet's stdout (or the rendered SQL result table).
type executeResponse struct {
	Success bool                      `json:"success"`
	Output  string                    `json:"output"`
	Stderr  string                    `json:"stderr"`
	Error   *executor.StructuredError `json:"error,omitempty"`
}

// HandleExecute runs one snippet.
//
// HTTP: POST /execute
// REQUEST BODY: {"code": "print('hello')"}
//
// 400 only for malformed JSON, empty code, or oversized code; everything
// the snippet itself did wrong comes back inside a 200 result.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSource(w, r)
	if !ok {
		return
	}
	if req.Code == "" {
		writeError(w, apperror.ValidationFailed("code", "code cannot be empty"))
		return
	}

	observability.ExecutionsInFlight.Inc()
	defer observability.ExecutionsInFlight.Dec()

	var (
		result *executor.ExecutionResult
		err    error
	)
	if sqlcell.IsSQL(req.Code) {
		result, err = h.sql.Execute(r.Context(), req.Code)
	} else {
		result, err = h.exec.Execute(r.Context(), req)
	}
	if err != nil {
		observability.ExecutionsTotal.WithLabelValues("internal_fault").Inc()
		h.logger.Error("execution failed internally", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred during execution",
		})
		return
	}

	observability.ExecutionsTotal.WithLabelValues(outcomeLabel(result)).Inc()
	observability.ExecutionDuration.Observe(result.Duration.Seconds())

	writeJSON(w, http.StatusOK, executeResponse{
		Success: result.Success,
		Output:  result.Stdout,
		Stderr:  result.Stderr,
		Error:   result.Error,
	})
}

type lintResponse struct {
	Diagnostics []sandbox.Diagnostic `json:"diagnostics"`
}

// HandleLint statically checks a snippet without running it.
//
// HTTP: POST /lint
// REQUEST BODY: {"code": "import os"}
func (h *ExecuteHandler) HandleLint(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSource(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, lintResponse{Diagnostics: h.linter.Lint(req.Code)})
}

// decodeSource reads the {"code": ...} body shared by execute and lint,
// enforcing the source size cap. Reports false after writing the error.
func (h *ExecuteHandler) decodeSource(w http.ResponseWriter, r *http.Request) (executor.ExecutionRequest, bool) {
	var req executor.ExecutionRequest

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxSourceBytes)+1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return executor.ExecutionRequest{}, false
	}
	if len(req.Code) > h.maxSourceBytes {
		writeError(w, apperror.ValidationFailed("code",
			"code exceeds the maximum source size"))
		return executor.ExecutionRequest{}, false
	}
	return req, true
}

// outcomeLabel folds a result into the executions-by-outcome metric label.
func outcomeLabel(res *executor.ExecutionResult) string {
	if res.Success {
		return "success"
	}
	switch res.Error.Kind {
	case executor.KindSyntax:
		return "syntax_error"
	case executor.KindImport:
		return "import_error"
	case executor.KindTimeout:
		return "timeout"
	default:
		return "runtime_failure"
	}
}
