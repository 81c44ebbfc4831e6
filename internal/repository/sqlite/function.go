package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/repository"
	"github.com/rs/xid"
)

// compile-time check that *DB implements repository.FunctionRepository
var _ repository.FunctionRepository = (*DB)(nil)

// CreateFunction inserts a new registry function. The ID and timestamps
// are generated here and written back to fn. A name collision returns
// apperror.ErrConflict; the service pre-checks, so hitting this path
// means two saves raced.
func (db *DB) CreateFunction(ctx context.Context, fn *model.Function) error {
	fn.ID = xid.New().String()

	now := time.Now()
	fn.CreatedAt = now
	fn.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO functions (id, name, code, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fn.ID,
		fn.Name,
		fn.Code,
		fn.Description,
		fn.CreatedAt,
		fn.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict(fmt.Sprintf("a function named %q already exists", fn.Name))
		}
		return fmt.Errorf("sqlite: creating function: %w", err)
	}

	return nil
}

// GetFunctionByName retrieves a single function by its registry name.
// Returns apperror.ErrNotFound if no function with that name exists.
func (db *DB) GetFunctionByName(ctx context.Context, name string) (*model.Function, error) {
	var fn model.Function

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, code, description, created_at, updated_at
		 FROM functions
		 WHERE name = ?`,
		name,
	).Scan(
		&fn.ID,
		&fn.Name,
		&fn.Code,
		&fn.Description,
		&fn.CreatedAt,
		&fn.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("function", name)
		}
		return nil, fmt.Errorf("sqlite: getting function %s: %w", name, err)
	}

	return &fn, nil
}

// ListFunctions returns every saved function ordered by name. The
// registry is the source for the sandbox funcs module, which needs the
// full set, so there is no pagination here.
func (db *DB) ListFunctions(ctx context.Context) ([]model.Function, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, code, description, created_at, updated_at
		 FROM functions
		 ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing functions: %w", err)
	}
	defer rows.Close()

	functions := make([]model.Function, 0, 16)
	for rows.Next() {
		var fn model.Function
		if err := rows.Scan(
			&fn.ID, &fn.Name, &fn.Code, &fn.Description,
			&fn.CreatedAt, &fn.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning function row: %w", err)
		}
		functions = append(functions, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating functions: %w", err)
	}

	return functions, nil
}

// DeleteFunction removes a function by name. Returns
// apperror.ErrNotFound if no function with that name exists.
func (db *DB) DeleteFunction(ctx context.Context, name string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM functions WHERE name = ?`,
		name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting function %s: %w", name, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("function", name)
	}

	return nil
}
