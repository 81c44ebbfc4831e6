package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
)

// VersionStore is the slice of the version service the handler needs.
type VersionStore interface {
	Save(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error)
	ListByTab(ctx context.Context, tab string, limit, offset int) ([]model.Version, error)
	GetByID(ctx context.Context, id string) (*model.Version, error)
}

// VersionHandler serves the per-tab history of executed code.
type VersionHandler struct {
	versions VersionStore
	logger   *slog.Logger
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(versions VersionStore, logger *slog.Logger) *VersionHandler {
	return &VersionHandler{versions: versions, logger: logger}
}

// saveVersionResponse reports the outcome of a save. Saved is false when the
// code matched the tab's latest version; Version then carries that existing
// record.
type saveVersionResponse struct {
	Saved   bool           `json:"saved"`
	Message string         `json:"message"`
	Version *model.Version `json:"version"`
}

// HandleSave records a version of a tab's code.
//
// HTTP: POST /api/save-version
// REQUEST BODY: {"tab": "main", "code": "...", "output": "...", "success": true}
//
// A save whose code matches the tab's latest version is skipped; the client
// gets the existing version back with saved=false.
func (h *VersionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tab     string `json:"tab"`
		Code    string `json:"code"`
		Output  string `json:"output"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid version body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	version, saved, err := h.versions.Save(r.Context(), req.Tab, req.Code, req.Output, req.Success)
	if err != nil {
		writeError(w, err)
		return
	}

	if !saved {
		writeJSON(w, http.StatusOK, saveVersionResponse{
			Saved:   false,
			Message: "No changes detected, version not saved",
			Version: version,
		})
		return
	}

	writeJSON(w, http.StatusCreated, saveVersionResponse{
		Saved:   true,
		Message: "Version saved successfully",
		Version: version,
	})
}

// HandleListByTab returns a tab's versions, newest first.
//
// HTTP: GET /api/list-versions/{tab}?limit=20&offset=0
//
// RESPONSE FORMAT:
//
//	{"versions": [{"id":"...","tab":"main","code":"...",...}]}
func (h *VersionHandler) HandleListByTab(w http.ResponseWriter, r *http.Request) {
	tab := r.PathValue("tab")

	limit := 0
	offset := 0
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("offset", "offset must be a non-negative integer"))
			return
		}
		offset = n
	}

	versions, err := h.versions.ListByTab(r.Context(), tab, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.Version{"versions": versions})
}

// HandleGetByID returns one version with its full code.
//
// HTTP: GET /api/get-version/{id}
func (h *VersionHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	version, err := h.versions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}
