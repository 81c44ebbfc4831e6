package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
)

// newTestDB opens an in-memory database that lives only for the test.
// t.Helper() makes failures report at the caller's line.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestFunction(t *testing.T, db *DB, name, code string) *model.Function {
	t.Helper()
	fn := &model.Function{Name: name, Code: code}
	if err := db.CreateFunction(context.Background(), fn); err != nil {
		t.Fatalf("failed to create test function: %v", err)
	}
	return fn
}

func TestCreateFunction(t *testing.T) {
	db := newTestDB(t)

	fn := &model.Function{
		Name:        "double",
		Code:        "def double(x):\n    return x * 2",
		Description: "doubles a number",
	}

	if err := db.CreateFunction(context.Background(), fn); err != nil {
		t.Fatalf("CreateFunction() error = %v", err)
	}

	if fn.ID == "" {
		t.Error("CreateFunction() did not set fn.ID")
	}
	if fn.CreatedAt.IsZero() {
		t.Error("CreateFunction() did not set fn.CreatedAt")
	}
	if fn.UpdatedAt.IsZero() {
		t.Error("CreateFunction() did not set fn.UpdatedAt")
	}
}

func TestCreateFunction_DuplicateName(t *testing.T) {
	db := newTestDB(t)
	createTestFunction(t, db, "double", "def double(x):\n    return x * 2")

	duplicate := &model.Function{
		Name: "double",
		Code: "def double(x):\n    return x + x",
	}
	err := db.CreateFunction(context.Background(), duplicate)
	if err == nil {
		t.Fatal("CreateFunction() should have returned an error for a duplicate name")
	}
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("CreateFunction() error = %v, want ErrConflict", err)
	}
}

func TestGetFunctionByName(t *testing.T) {
	db := newTestDB(t)
	created := createTestFunction(t, db, "clean", "def clean(f):\n    return f")

	found, err := db.GetFunctionByName(context.Background(), "clean")
	if err != nil {
		t.Fatalf("GetFunctionByName() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.Code != created.Code {
		t.Errorf("Code = %q, want %q", found.Code, created.Code)
	}
}

func TestGetFunctionByName_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetFunctionByName(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("GetFunctionByName() should have returned an error for a missing name")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetFunctionByName() error = %v, want ErrNotFound", err)
	}
}

func TestListFunctions_Empty(t *testing.T) {
	db := newTestDB(t)

	functions, err := db.ListFunctions(context.Background())
	if err != nil {
		t.Fatalf("ListFunctions() error = %v", err)
	}
	if len(functions) != 0 {
		t.Errorf("ListFunctions() returned %d functions, want 0", len(functions))
	}
}

func TestListFunctions_OrderedByName(t *testing.T) {
	db := newTestDB(t)

	createTestFunction(t, db, "zscore", "def zscore(x):\n    return x")
	createTestFunction(t, db, "clean", "def clean(f):\n    return f")
	createTestFunction(t, db, "normalize", "def normalize(x):\n    return x")

	functions, err := db.ListFunctions(context.Background())
	if err != nil {
		t.Fatalf("ListFunctions() error = %v", err)
	}
	if len(functions) != 3 {
		t.Fatalf("ListFunctions() returned %d functions, want 3", len(functions))
	}

	want := []string{"clean", "normalize", "zscore"}
	for i, name := range want {
		if functions[i].Name != name {
			t.Errorf("functions[%d].Name = %q, want %q", i, functions[i].Name, name)
		}
	}
}

func TestDeleteFunction(t *testing.T) {
	db := newTestDB(t)
	createTestFunction(t, db, "doomed", "def doomed():\n    return 0")

	if err := db.DeleteFunction(context.Background(), "doomed"); err != nil {
		t.Fatalf("DeleteFunction() error = %v", err)
	}

	_, err := db.GetFunctionByName(context.Background(), "doomed")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetFunctionByName() after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDeleteFunction_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteFunction(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("DeleteFunction() should have returned an error for a missing name")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteFunction() error = %v, want ErrNotFound", err)
	}
}

// TestFunctionMigrationIdempotent ensures migrate() is safe to run on a
// database that already has the schema (every startup re-runs it).
func TestFunctionMigrationIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}

	createTestFunction(t, db, "still_works", "def still_works():\n    return 1")
	if _, err := db.GetFunctionByName(context.Background(), "still_works"); err != nil {
		t.Fatalf("GetFunctionByName() after re-migrate error = %v", err)
	}
}
