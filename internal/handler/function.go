package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/makolabs/mako/internal/model"
)

// FunctionStore is the slice of the function service the handler needs.
type FunctionStore interface {
	Save(ctx context.Context, name, code, description string) (*model.Function, error)
	List(ctx context.Context) ([]model.Function, error)
	Delete(ctx context.Context, name string) error
}

// FunctionHandler serves the registry of saved script functions.
type FunctionHandler struct {
	functions FunctionStore
	logger    *slog.Logger
}

// NewFunctionHandler creates a new FunctionHandler.
func NewFunctionHandler(functions FunctionStore, logger *slog.Logger) *FunctionHandler {
	return &FunctionHandler{functions: functions, logger: logger}
}

// HandleSave stores a reusable function under its name.
//
// HTTP: POST /api/save-function
// REQUEST BODY: {"name": "clean", "code": "def clean(x):\n    return x", "description": "..."}
//
// The code must define exactly one top-level function matching name; names
// already registered are rejected with a conflict.
func (h *FunctionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid function body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	fn, err := h.functions.Save(r.Context(), req.Name, req.Code, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, fn)
}

// HandleList returns all saved functions ordered by name.
//
// HTTP: GET /api/list-functions
//
// RESPONSE FORMAT:
//
//	{"functions": [{"id":"...","name":"clean","code":"...","description":"...",...}]}
func (h *FunctionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	functions, err := h.functions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.Function{"functions": functions})
}

// HandleDelete removes a saved function.
//
// HTTP: DELETE /api/delete-function/{name}
func (h *FunctionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.functions.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("function deleted", slog.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}
