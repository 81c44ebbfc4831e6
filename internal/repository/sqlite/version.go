package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/repository"
	"github.com/rs/xid"
)

// compile-time check that *DB implements repository.VersionRepository
var _ repository.VersionRepository = (*DB)(nil)

// CreateVersion inserts an execution snapshot. The ID and timestamp are
// generated here and written back to v.
func (db *DB) CreateVersion(ctx context.Context, v *model.Version) error {
	v.ID = xid.New().String()
	v.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO versions (id, tab, code, output_preview, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.Tab,
		v.Code,
		v.OutputPreview,
		v.Success,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating version: %w", err)
	}

	return nil
}

// GetVersionByID retrieves a single version snapshot by its ID.
// Returns apperror.ErrNotFound if no version exists with that ID.
func (db *DB) GetVersionByID(ctx context.Context, id string) (*model.Version, error) {
	var v model.Version

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, tab, code, output_preview, success, created_at
		 FROM versions
		 WHERE id = ?`,
		id,
	).Scan(
		&v.ID,
		&v.Tab,
		&v.Code,
		&v.OutputPreview,
		&v.Success,
		&v.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("version", id)
		}
		return nil, fmt.Errorf("sqlite: getting version %s: %w", id, err)
	}

	return &v, nil
}

// ListVersionsByTab returns the snapshots for one tab, newest first.
// Version saves cluster in time, so the xid tiebreak keeps bursts in
// creation order even when timestamps collide.
func (db *DB) ListVersionsByTab(ctx context.Context, tab string, opts repository.ListOptions) ([]model.Version, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20 // Default page size
	}
	if limit > 100 {
		limit = 100 // Maximum page size — prevent fetching entire DB
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, tab, code, output_preview, success, created_at
		 FROM versions
		 WHERE tab = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		tab,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions: %w", err)
	}
	defer rows.Close()

	versions := make([]model.Version, 0, limit)
	for rows.Next() {
		var v model.Version
		if err := rows.Scan(
			&v.ID, &v.Tab, &v.Code, &v.OutputPreview,
			&v.Success, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning version row: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating versions: %w", err)
	}

	return versions, nil
}

// LatestVersionByTab returns the most recent snapshot for a tab, which
// the service compares against to skip saves with unchanged code.
// Returns apperror.ErrNotFound when the tab has no versions yet.
func (db *DB) LatestVersionByTab(ctx context.Context, tab string) (*model.Version, error) {
	var v model.Version

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, tab, code, output_preview, success, created_at
		 FROM versions
		 WHERE tab = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		tab,
	).Scan(
		&v.ID,
		&v.Tab,
		&v.Code,
		&v.OutputPreview,
		&v.Success,
		&v.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("version", tab)
		}
		return nil, fmt.Errorf("sqlite: getting latest version for tab %s: %w", tab, err)
	}

	return &v, nil
}
