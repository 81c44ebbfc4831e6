package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/dataset"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/observability"
)

// maxUploadBytes caps dataset uploads. Parquet conversion buffers the rows,
// so the cap also bounds memory per upload.
const maxUploadBytes = 64 << 20

// DatasetHandler serves the dataset store: uploads, listings, paged reads,
// schema, and the per-dataset context notes.
type DatasetHandler struct {
	store  *dataset.Store
	logger *slog.Logger
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(store *dataset.Store, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{store: store, logger: logger}
}

// HandleList returns all stored datasets.
//
// HTTP: GET /api/list-datasets
//
// RESPONSE FORMAT:
//
//	{"datasets": [{"name":"sales","path":"sales.parquet","size":1234,"modified":"..."}]}
func (h *DatasetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list datasets", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]model.Dataset{"datasets": datasets})
}

// uploadResponse reports a stored upload. FileExists is true when the upload
// replaced a dataset that already had that name.
type uploadResponse struct {
	Success    bool   `json:"success"`
	Filename   string `json:"filename"`
	FileExists bool   `json:"fileExists"`
}

// HandleUpload stores an uploaded file as a Parquet dataset.
//
// HTTP: POST /api/upload
// REQUEST: multipart form, field "file" (the upload) and field
// "newFileName" (the dataset name to store it under).
//
// CSV and JSON uploads are converted; Parquet uploads are re-encoded. The
// source format is picked from the uploaded file's extension.
func (h *DatasetHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Warn("invalid upload form", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("file", "a file upload is required"))
		return
	}
	defer file.Close()

	name := r.FormValue("newFileName")
	if name == "" {
		writeError(w, apperror.ValidationFailed("newFileName", "a dataset name is required"))
		return
	}

	ds, replaced, err := h.store.Import(name, header.Filename, file)
	if err != nil {
		h.logger.Warn("dataset import failed",
			slog.String("name", name),
			slog.String("upload", header.Filename),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.logger.Info("dataset imported",
		slog.String("name", ds.Name),
		slog.Int64("size", ds.Size),
		slog.Bool("replaced", replaced))
	h.syncDatasetGauge()

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:    true,
		Filename:   ds.Path,
		FileExists: replaced,
	})
}

// HandleDelete removes a dataset and its context note.
//
// HTTP: DELETE /api/delete-dataset/{name}
func (h *DatasetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if err := h.store.Delete(name); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("dataset deleted", slog.String("name", name))
	h.syncDatasetGauge()

	w.WriteHeader(http.StatusNoContent)
}

// HandleData returns one page of a dataset's rows.
//
// HTTP: GET /api/get-dataset-data/{name}?offset=0&limit=50
//
// RESPONSE FORMAT:
//
//	{"columns":["a","b"],"rows":[{"a":1,"b":"x"}],"total_rows":1000}
func (h *DatasetHandler) HandleData(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	offset := 0
	limit := 50
	q := r.URL.Query()
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("offset", "offset must be a non-negative integer"))
			return
		}
		offset = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	page, err := h.store.Page(name, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// HandleSchema returns a dataset's column names and types.
//
// HTTP: GET /api/get-dataset-schema/{name}
//
// RESPONSE FORMAT:
//
//	{"schema": [{"column":"a","type":"int64"}, {"column":"b","type":"string"}]}
func (h *DatasetHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	schema, err := h.store.Schema(name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"schema": schema})
}

// HandleSaveContext stores the markdown note describing a dataset.
//
// HTTP: POST /api/save-dataset-context/{name}
// REQUEST BODY: {"content": "## Sales data\n..."}
func (h *DatasetHandler) HandleSaveContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid context body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	if err := h.store.SaveContext(name, req.Content); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Context saved successfully"})
}

// contextResponse carries a dataset note. Exists distinguishes "no note yet"
// from an empty note so the client can show a placeholder.
type contextResponse struct {
	Content string `json:"content"`
	Exists  bool   `json:"exists"`
}

// HandleGetContext returns the markdown note for a dataset, if any.
//
// HTTP: GET /api/get-dataset-context/{name}
func (h *DatasetHandler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	content, exists, err := h.store.Context(name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, contextResponse{Content: content, Exists: exists})
}

// syncDatasetGauge refreshes the stored-datasets gauge after a mutation.
func (h *DatasetHandler) syncDatasetGauge() {
	names, err := h.store.Names()
	if err != nil {
		return
	}
	observability.DatasetsStored.Set(float64(len(names)))
}
