package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/handler"
	"github.com/makolabs/mako/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockVersionStore fakes the version service at the handler boundary.
type MockVersionStore struct {
	SaveFn func(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error)
	ListFn func(ctx context.Context, tab string, limit, offset int) ([]model.Version, error)
	GetFn  func(ctx context.Context, id string) (*model.Version, error)
}

func (m *MockVersionStore) Save(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error) {
	return m.SaveFn(ctx, tab, code, output, success)
}

func (m *MockVersionStore) ListByTab(ctx context.Context, tab string, limit, offset int) ([]model.Version, error) {
	return m.ListFn(ctx, tab, limit, offset)
}

func (m *MockVersionStore) GetByID(ctx context.Context, id string) (*model.Version, error) {
	return m.GetFn(ctx, id)
}

func newTestVersionHandler(store *MockVersionStore) *handler.VersionHandler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return handler.NewVersionHandler(store, logger)
}

type saveVersionResponse struct {
	Saved   bool           `json:"saved"`
	Message string         `json:"message"`
	Version *model.Version `json:"version"`
}

func TestVersionHandler_HandleSave(t *testing.T) {
	t.Run("new code is saved with a 201", func(t *testing.T) {
		store := &MockVersionStore{
			SaveFn: func(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error) {
				assert.Equal(t, "main", tab)
				assert.Equal(t, "print(1)", code)
				assert.True(t, success)
				return &model.Version{ID: "v-1", Tab: tab, Code: code}, true, nil
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodPost, "/api/save-version",
			bytes.NewBufferString(`{"tab":"main","code":"print(1)","output":"1\n","success":true}`))
		rr := httptest.NewRecorder()
		h.HandleSave(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var res saveVersionResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.True(t, res.Saved)
		assert.Equal(t, "Version saved successfully", res.Message)
		require.NotNil(t, res.Version)
		assert.Equal(t, "v-1", res.Version.ID)
	})

	t.Run("unchanged code returns the latest version with a 200", func(t *testing.T) {
		store := &MockVersionStore{
			SaveFn: func(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error) {
				return &model.Version{ID: "v-1", Tab: tab, Code: code}, false, nil
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodPost, "/api/save-version",
			bytes.NewBufferString(`{"tab":"main","code":"print(1)"}`))
		rr := httptest.NewRecorder()
		h.HandleSave(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res saveVersionResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.False(t, res.Saved)
		assert.Equal(t, "No changes detected, version not saved", res.Message)
		require.NotNil(t, res.Version)
		assert.Equal(t, "v-1", res.Version.ID)
	})

	t.Run("blank tab is a 400", func(t *testing.T) {
		store := &MockVersionStore{
			SaveFn: func(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error) {
				return nil, false, apperror.ValidationFailed("tab", "tab name is required")
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodPost, "/api/save-version",
			bytes.NewBufferString(`{"tab":"","code":"print(1)"}`))
		rr := httptest.NewRecorder()
		h.HandleSave(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		h := newTestVersionHandler(&MockVersionStore{})

		req := httptest.NewRequest(http.MethodPost, "/api/save-version",
			bytes.NewBufferString(`{"tab":`))
		rr := httptest.NewRecorder()
		h.HandleSave(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestVersionHandler_HandleListByTab(t *testing.T) {
	t.Run("passes pagination through", func(t *testing.T) {
		var gotTab string
		var gotLimit, gotOffset int
		store := &MockVersionStore{
			ListFn: func(ctx context.Context, tab string, limit, offset int) ([]model.Version, error) {
				gotTab, gotLimit, gotOffset = tab, limit, offset
				return []model.Version{{ID: "v-2"}, {ID: "v-1"}}, nil
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/list-versions/main?limit=5&offset=10", nil)
		req.SetPathValue("tab", "main")
		rr := httptest.NewRecorder()
		h.HandleListByTab(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "main", gotTab)
		assert.Equal(t, 5, gotLimit)
		assert.Equal(t, 10, gotOffset)

		var res struct {
			Versions []model.Version `json:"versions"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		require.Len(t, res.Versions, 2)
		assert.Equal(t, "v-2", res.Versions[0].ID)
	})

	t.Run("rejects a malformed limit", func(t *testing.T) {
		h := newTestVersionHandler(&MockVersionStore{})

		req := httptest.NewRequest(http.MethodGet, "/api/list-versions/main?limit=-3", nil)
		req.SetPathValue("tab", "main")
		rr := httptest.NewRecorder()
		h.HandleListByTab(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestVersionHandler_HandleGetByID(t *testing.T) {
	t.Run("returns the version", func(t *testing.T) {
		store := &MockVersionStore{
			GetFn: func(ctx context.Context, id string) (*model.Version, error) {
				assert.Equal(t, "v-1", id)
				return &model.Version{ID: "v-1", Tab: "main", Code: "print(1)"}, nil
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/get-version/v-1", nil)
		req.SetPathValue("id", "v-1")
		rr := httptest.NewRecorder()
		h.HandleGetByID(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var res model.Version
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "print(1)", res.Code)
	})

	t.Run("missing version is a 404", func(t *testing.T) {
		store := &MockVersionStore{
			GetFn: func(ctx context.Context, id string) (*model.Version, error) {
				return nil, apperror.NotFound("version", id)
			},
		}
		h := newTestVersionHandler(store)

		req := httptest.NewRequest(http.MethodGet, "/api/get-version/ghost", nil)
		req.SetPathValue("id", "ghost")
		rr := httptest.NewRecorder()
		h.HandleGetByID(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
