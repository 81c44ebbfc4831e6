package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/repository"
)

type mockVersionRepo struct {
	versions []*model.Version // oldest first
	nextID   int
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{}
}

func (m *mockVersionRepo) CreateVersion(_ context.Context, v *model.Version) error {
	m.nextID++
	v.ID = fmt.Sprintf("mock-%d", m.nextID)
	stored := *v
	m.versions = append(m.versions, &stored)
	return nil
}

func (m *mockVersionRepo) GetVersionByID(_ context.Context, id string) (*model.Version, error) {
	for _, v := range m.versions {
		if v.ID == id {
			result := *v
			return &result, nil
		}
	}
	return nil, apperror.NotFound("version", id)
}

func (m *mockVersionRepo) ListVersionsByTab(_ context.Context, tab string, opts repository.ListOptions) ([]model.Version, error) {
	result := make([]model.Version, 0, len(m.versions))
	for i := len(m.versions) - 1; i >= 0; i-- { // newest first
		if m.versions[i].Tab == tab {
			result = append(result, *m.versions[i])
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []model.Version{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockVersionRepo) LatestVersionByTab(_ context.Context, tab string) (*model.Version, error) {
	for i := len(m.versions) - 1; i >= 0; i-- {
		if m.versions[i].Tab == tab {
			result := *m.versions[i]
			return &result, nil
		}
	}
	return nil, apperror.NotFound("version", tab)
}

func newTestVersionService(t *testing.T) (*VersionService, *mockVersionRepo) {
	t.Helper()
	repo := newMockVersionRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewVersionService(repo, logger)
	return svc, repo
}

func TestSaveVersion_Success(t *testing.T) {
	svc, _ := newTestVersionService(t)

	v, saved, err := svc.Save(context.Background(), "analysis", "print('v1')", "v1\n", true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !saved {
		t.Error("Save() saved = false, want true for a new version")
	}
	if v.ID == "" {
		t.Error("expected version to have an ID")
	}
	if v.OutputPreview != "v1\n" {
		t.Errorf("OutputPreview = %q, want %q", v.OutputPreview, "v1\n")
	}
}

func TestSaveVersion_SkipsUnchangedCode(t *testing.T) {
	svc, repo := newTestVersionService(t)

	_, saved, err := svc.Save(context.Background(), "analysis", "print('v1')", "", true)
	if err != nil || !saved {
		t.Fatalf("first Save() = (saved=%v, err=%v), want (true, nil)", saved, err)
	}

	// Same code again: no new version, even when the outcome differs.
	v, saved, err := svc.Save(context.Background(), "analysis", "print('v1')", "other output", false)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if saved {
		t.Error("second Save() saved = true, want false for unchanged code")
	}
	if v == nil || v.ID != "mock-1" {
		t.Errorf("second Save() should return the existing latest version, got %+v", v)
	}
	if len(repo.versions) != 1 {
		t.Errorf("repository holds %d versions, want 1", len(repo.versions))
	}
}

func TestSaveVersion_DedupOnlyAgainstLatest(t *testing.T) {
	svc, repo := newTestVersionService(t)

	mustSaveVersion(t, svc, "analysis", "print('v1')")
	mustSaveVersion(t, svc, "analysis", "print('v2')")

	// v1's code returns, but the latest is v2, so this is a real change.
	_, saved, err := svc.Save(context.Background(), "analysis", "print('v1')", "", true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !saved {
		t.Error("Save() saved = false, want true when code differs from the latest version")
	}
	if len(repo.versions) != 3 {
		t.Errorf("repository holds %d versions, want 3", len(repo.versions))
	}
}

func TestSaveVersion_DedupIsPerTab(t *testing.T) {
	svc, repo := newTestVersionService(t)

	mustSaveVersion(t, svc, "analysis", "print('hello')")

	_, saved, err := svc.Save(context.Background(), "scratch", "print('hello')", "", true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !saved {
		t.Error("Save() saved = false, want true: identical code on another tab is still new")
	}
	if len(repo.versions) != 2 {
		t.Errorf("repository holds %d versions, want 2", len(repo.versions))
	}
}

func TestSaveVersion_TruncatesPreview(t *testing.T) {
	svc, _ := newTestVersionService(t)

	long := strings.Repeat("x", 600)
	v, _, err := svc.Save(context.Background(), "analysis", "code", long, true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := strings.Repeat("x", VersionPreviewRunes) + "..."
	if v.OutputPreview != want {
		t.Errorf("OutputPreview length = %d, want %d with ellipsis",
			len(v.OutputPreview), len(want))
	}
}

func TestSaveVersion_PreviewCountsRunes(t *testing.T) {
	svc, _ := newTestVersionService(t)

	long := strings.Repeat("é", 501)
	v, _, err := svc.Save(context.Background(), "analysis", "code", long, true)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := strings.Repeat("é", 500) + "..."
	if v.OutputPreview != want {
		t.Errorf("OutputPreview = %d bytes, want rune-safe truncation", len(v.OutputPreview))
	}
}

func TestSaveVersion_Validation(t *testing.T) {
	svc, _ := newTestVersionService(t)

	if _, _, err := svc.Save(context.Background(), "  ", "code", "", true); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Save() with blank tab: error = %v, want ErrValidation", err)
	}
	if _, _, err := svc.Save(context.Background(), "analysis", "", "", true); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Save() with empty code: error = %v, want ErrValidation", err)
	}
}

func TestListVersionsByTab_Service(t *testing.T) {
	svc, _ := newTestVersionService(t)

	mustSaveVersion(t, svc, "analysis", "print('v1')")
	mustSaveVersion(t, svc, "analysis", "print('v2')")
	mustSaveVersion(t, svc, "scratch", "print('other')")

	versions, err := svc.ListByTab(context.Background(), "analysis", 0, 0)
	if err != nil {
		t.Fatalf("ListByTab() error = %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("ListByTab() returned %d versions, want 2", len(versions))
	}
	if versions[0].Code != "print('v2')" {
		t.Errorf("versions[0].Code = %q, want newest %q", versions[0].Code, "print('v2')")
	}
}

func TestGetVersionByID_Service(t *testing.T) {
	svc, _ := newTestVersionService(t)
	created := mustSaveVersion(t, svc, "analysis", "x = 1")

	found, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Code != "x = 1" {
		t.Errorf("Code = %q, want %q", found.Code, "x = 1")
	}

	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByID(context.Background(), ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetByID(\"\") error = %v, want ErrValidation", err)
	}
}

func mustSaveVersion(t *testing.T, svc *VersionService, tab, code string) *model.Version {
	t.Helper()
	v, saved, err := svc.Save(context.Background(), tab, code, "", true)
	if err != nil {
		t.Fatalf("Save(%q) error = %v", tab, err)
	}
	if !saved {
		t.Fatalf("Save(%q) unexpectedly deduplicated", tab)
	}
	return v
}
