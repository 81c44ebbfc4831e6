package sqlcell

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/executor"
	"github.com/makolabs/mako/internal/frame"
)

// maxRenderRows caps how many result rows land in the text output. The
// full result is still saved when a save_as directive is present.
const maxRenderRows = 50

// Datasets is the slice of the dataset store the engine needs.
type Datasets interface {
	Load(name string) (*frame.Frame, error)
	Save(name string, f *frame.Frame) error
}

// Engine executes @sql cells against a throwaway in-memory database.
type Engine struct {
	data    Datasets
	timeout time.Duration
}

// NewEngine returns an engine reading and writing datasets through data.
// timeout bounds each query; zero means no bound beyond the request's.
func NewEngine(data Datasets, timeout time.Duration) *Engine {
	return &Engine{data: data, timeout: timeout}
}

// Execute runs one @sql cell. Query failures come back as a failed result
// with a RuntimeFailure error, never as a Go error; the error return is
// reserved for engine faults.
func (e *Engine) Execute(ctx context.Context, code string) (*executor.ExecutionResult, error) {
	start := time.Now()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := e.run(ctx, code)
	elapsed := time.Since(start)
	if err != nil {
		// The driver aborts via sqlite3_interrupt on context expiry, so the
		// query error itself rarely wraps the deadline; ask the context.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return executor.Failed(&executor.StructuredError{
				Kind:    executor.KindTimeout,
				Message: fmt.Sprintf("SQL query exceeded the time limit of %s", e.timeout),
			}, "", "", elapsed), nil
		}
		return executor.Failed(&executor.StructuredError{
			Kind:    executor.KindRuntime,
			Message: "SQL error: " + err.Error(),
		}, "", "", elapsed), nil
	}
	return executor.Succeeded(result.Render(maxRenderRows), "", elapsed), nil
}

// run parses the cell, stages referenced datasets, executes the query, and
// applies the save_as directive.
func (e *Engine) run(ctx context.Context, code string) (*frame.Frame, error) {
	c := parseCell(code)
	if c.query == "" {
		return nil, errors.New("empty query")
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening scratch database: %w", err)
	}
	defer db.Close()
	// Every connection to :memory: is a distinct database; keep one.
	db.SetMaxOpenConns(1)

	for _, name := range c.tables {
		f, err := e.data.Load(name)
		if err != nil {
			// Not every FROM/JOIN name is a dataset (aliases, CTEs);
			// let SQLite report genuinely unknown tables.
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if err := stageTable(ctx, db, name, f); err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx, c.query)
	if err != nil {
		return nil, err
	}
	result, err := frameFromRows(rows)
	if err != nil {
		return nil, err
	}

	if c.saveAs != "" {
		if err := e.data.Save(c.saveAs, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// stageTable creates a table mirroring the frame and bulk-inserts its rows.
func stageTable(ctx context.Context, db *sql.DB, name string, f *frame.Frame) error {
	cols := f.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c.Name()) + " " + sqliteType(c.Kind())
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("staging table %q: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("staging table %q: %w", name, err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("staging table %q: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i := 0; i < f.NumRows(); i++ {
		for j, c := range cols {
			cell, null := c.Cell(i)
			if null {
				args[j] = nil
			} else {
				args[j] = cell
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("staging table %q: %w", name, err)
		}
	}
	return tx.Commit()
}

func sqliteType(k frame.Kind) string {
	switch k {
	case frame.Int64, frame.Bool:
		return "INTEGER"
	case frame.Float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// frameFromRows drains a result set into a frame, inferring column kinds
// from the scanned values.
func frameFromRows(rows *sql.Rows) (*frame.Frame, error) {
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cells := make([][]any, len(names))
	scan := make([]any, len(names))
	for rows.Next() {
		for i := range scan {
			scan[i] = new(any)
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		for i := range scan {
			cells[i] = append(cells[i], *scan[i].(*any))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]*frame.Column, len(names))
	for i, name := range names {
		col, err := frame.ColumnFromValues(name, cells[i])
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return frame.New(cols)
}
