package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/makolabs/mako/internal/executor"
	"github.com/makolabs/mako/internal/executor/sandbox"
	"github.com/makolabs/mako/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockExecutor implements a fast, mock executor so handler tests don't need
// a real interpreter.
type MockExecutor struct {
	CapturedReq executor.ExecutionRequest
	ReturnRes   *executor.ExecutionResult
	ReturnErr   error
}

func (m *MockExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.CapturedReq = req
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

// MockSQLRunner captures @sql dispatches.
type MockSQLRunner struct {
	CapturedCode string
	ReturnRes    *executor.ExecutionResult
	ReturnErr    error
}

func (m *MockSQLRunner) Execute(ctx context.Context, code string) (*executor.ExecutionResult, error) {
	m.CapturedCode = code
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

// MockLinter returns canned diagnostics.
type MockLinter struct {
	CapturedSource string
	ReturnDiags    []sandbox.Diagnostic
}

func (m *MockLinter) Lint(source string) []sandbox.Diagnostic {
	m.CapturedSource = source
	return m.ReturnDiags
}

const testMaxSourceBytes = 1 << 16

func newTestExecuteHandler(exec *MockExecutor, sql *MockSQLRunner, linter *MockLinter) *handler.ExecuteHandler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return handler.NewExecuteHandler(exec, sql, linter, testMaxSourceBytes, logger)
}

// executeResponse mirrors the wire shape so tests decode what clients see.
type executeResponse struct {
	Success bool                      `json:"success"`
	Output  string                    `json:"output"`
	Stderr  string                    `json:"stderr"`
	Error   *executor.StructuredError `json:"error"`
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	t.Run("valid execution", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: executor.Succeeded("Hello World\n", "", 100*time.Millisecond),
		}
		h := newTestExecuteHandler(mockExec, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"code":"print('Hello World')"}`)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res executeResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.Success)
		assert.Equal(t, "Hello World\n", res.Output)
		assert.Nil(t, res.Error)

		assert.Equal(t, "print('Hello World')", mockExec.CapturedReq.Code)
	})

	t.Run("failed execution stays a 200", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: executor.Failed(&executor.StructuredError{
				Kind:    executor.KindRuntime,
				Message: "division by zero",
				Line:    2,
			}, "partial\n", "", 5*time.Millisecond),
		}
		h := newTestExecuteHandler(mockExec, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"code":"print('partial')\n1/0"}`)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res executeResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.False(t, res.Success)
		assert.Equal(t, "partial\n", res.Output)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindRuntime, res.Error.Kind)
		assert.Equal(t, "division by zero", res.Error.Message)
		assert.Equal(t, 2, res.Error.Line)
	})

	t.Run("sql cell dispatches to the sql runner", func(t *testing.T) {
		mockExec := &MockExecutor{}
		mockSQL := &MockSQLRunner{
			ReturnRes: executor.Succeeded("a | b\n1 | 2\n", "", time.Millisecond),
		}
		h := newTestExecuteHandler(mockExec, mockSQL, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"code":"@sql select * from sales"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "@sql select * from sales", mockSQL.CapturedCode)
		assert.Empty(t, mockExec.CapturedReq.Code, "script executor must not see sql cells")
	})

	t.Run("internal fault becomes a 500", func(t *testing.T) {
		mockExec := &MockExecutor{ReturnErr: context.DeadlineExceeded}
		h := newTestExecuteHandler(mockExec, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"code":"print(1)"}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		var res handler.ErrorResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "internal_error", res.Error)
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := newTestExecuteHandler(&MockExecutor{}, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"invalid_json":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty code", func(t *testing.T) {
		h := newTestExecuteHandler(&MockExecutor{}, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleExecute, `{"code":""}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("oversized code", func(t *testing.T) {
		mockExec := &MockExecutor{}
		h := newTestExecuteHandler(mockExec, &MockSQLRunner{}, &MockLinter{})

		code := strings.Repeat("x", testMaxSourceBytes+1)
		body, err := json.Marshal(map[string]string{"code": code})
		require.NoError(t, err)

		rr := postJSON(t, h.HandleExecute, string(body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, mockExec.CapturedReq.Code, "oversized code must not reach the executor")
	})
}

func TestExecuteHandler_HandleLint(t *testing.T) {
	t.Run("reports diagnostics", func(t *testing.T) {
		mockLinter := &MockLinter{
			ReturnDiags: []sandbox.Diagnostic{
				{Line: 1, Column: 1, Message: "import of 'os' is not permitted", Code: "S101"},
			},
		}
		h := newTestExecuteHandler(&MockExecutor{}, &MockSQLRunner{}, mockLinter)

		rr := postJSON(t, h.HandleLint, `{"code":"import os"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "import os", mockLinter.CapturedSource)

		var res struct {
			Diagnostics []sandbox.Diagnostic `json:"diagnostics"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		require.Len(t, res.Diagnostics, 1)
		assert.Equal(t, "S101", res.Diagnostics[0].Code)
	})

	t.Run("clean source yields empty diagnostics", func(t *testing.T) {
		h := newTestExecuteHandler(&MockExecutor{}, &MockSQLRunner{}, &MockLinter{ReturnDiags: []sandbox.Diagnostic{}})

		rr := postJSON(t, h.HandleLint, `{"code":"print(1)"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"diagnostics":[]}`, rr.Body.String())
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := newTestExecuteHandler(&MockExecutor{}, &MockSQLRunner{}, &MockLinter{})

		rr := postJSON(t, h.HandleLint, `not json`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
