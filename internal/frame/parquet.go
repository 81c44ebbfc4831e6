package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// columnOrderKey is the file metadata entry that preserves frame column
// order; parquet groups store fields sorted by name.
const columnOrderKey = "frame.column_order"

// Write encodes the frame as a parquet file. Every column is written as an
// optional leaf so nulls round-trip.
func Write(w io.Writer, f *Frame) error {
	if f.NumColumns() == 0 {
		return errors.New("parquet: cannot write a frame with no columns")
	}

	group := parquet.Group{}
	for _, c := range f.cols {
		var node parquet.Node
		switch c.kind {
		case Int64:
			node = parquet.Int(64)
		case Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case Bool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			node = parquet.String()
		}
		group[c.name] = parquet.Optional(node)
	}
	schema := parquet.NewSchema("frame", group)

	order, err := json.Marshal(f.ColumnNames())
	if err != nil {
		return fmt.Errorf("parquet: %w", err)
	}

	pw := parquet.NewGenericWriter[map[string]any](w, schema,
		parquet.KeyValueMetadata(columnOrderKey, string(order)))

	rows := make([]map[string]any, f.rows)
	for i := range rows {
		row := make(map[string]any, len(f.cols))
		for _, c := range f.cols {
			cell, null := c.Cell(i)
			if null {
				continue
			}
			row[c.name] = cell
		}
		rows[i] = row
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("parquet: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: %w", err)
	}
	return nil
}

// WriteFile encodes the frame to the named file, truncating it if present.
func WriteFile(path string, f *Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Read decodes a parquet file into a frame. Flat schemas only; int32 and
// float32 columns widen to int64 and float64.
func Read(r io.ReaderAt, size int64) (*Frame, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("parquet: %w", err)
	}

	fields := pf.Schema().Fields()
	cols := make([]*Column, len(fields))
	for i, fld := range fields {
		if !fld.Leaf() {
			return nil, fmt.Errorf("parquet: column %q: nested schemas are not supported", fld.Name())
		}
		cells, err := readColumn(pf, i)
		if err != nil {
			return nil, fmt.Errorf("parquet: column %q: %w", fld.Name(), err)
		}
		col, err := columnFromParquet(fld, cells)
		if err != nil {
			return nil, fmt.Errorf("parquet: %w", err)
		}
		cols[i] = col
	}

	f, err := New(cols)
	if err != nil {
		return nil, fmt.Errorf("parquet: %w", err)
	}
	return reorderColumns(pf, f)
}

// ReadFile decodes the named parquet file into a frame.
func ReadFile(path string) (*Frame, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return nil, err
	}
	return Read(in, st.Size())
}

// readColumn drains every page of leaf column idx across all row groups.
func readColumn(pf *parquet.File, idx int) ([]any, error) {
	var cells []any
	buf := make([]parquet.Value, 256)
	for _, rg := range pf.RowGroups() {
		pages := rg.ColumnChunks()[idx].Pages()
		err := func() error {
			defer pages.Close()
			for {
				page, err := pages.ReadPage()
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				values := page.Values()
				for {
					n, err := values.ReadValues(buf)
					for _, v := range buf[:n] {
						cells = append(cells, cellFromValue(v))
					}
					if err != nil {
						if errors.Is(err, io.EOF) {
							break
						}
						return err
					}
					if n == 0 {
						break
					}
				}
			}
		}()
		if err != nil {
			return nil, err
		}
	}
	return cells, nil
}

// columnFromParquet builds a column from decoded cells, taking the kind
// from the parquet schema when every cell is null.
func columnFromParquet(fld parquet.Field, cells []any) (*Column, error) {
	for _, c := range cells {
		if c != nil {
			return ColumnFromValues(fld.Name(), cells)
		}
	}
	nulls := make([]bool, len(cells))
	for i := range nulls {
		nulls[i] = true
	}
	switch fld.Type().Kind() {
	case parquet.Boolean:
		return NewBoolColumn(fld.Name(), make([]bool, len(cells)), nulls), nil
	case parquet.Int32, parquet.Int64:
		return NewInt64Column(fld.Name(), make([]int64, len(cells)), nulls), nil
	case parquet.Float, parquet.Double:
		return NewFloat64Column(fld.Name(), make([]float64, len(cells)), nulls), nil
	default:
		return NewStringColumn(fld.Name(), make([]string, len(cells)), nulls), nil
	}
}

func cellFromValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return string(v.ByteArray())
	}
}

// reorderColumns restores frame column order from file metadata when the
// recorded names exactly match the schema, and keeps file order otherwise.
func reorderColumns(pf *parquet.File, f *Frame) (*Frame, error) {
	raw, ok := pf.Lookup(columnOrderKey)
	if !ok {
		return f, nil
	}
	var order []string
	if err := json.Unmarshal([]byte(raw), &order); err != nil || len(order) != f.NumColumns() {
		return f, nil
	}
	cols := make([]*Column, 0, len(order))
	for _, name := range order {
		c, ok := f.Column(name)
		if !ok {
			return f, nil
		}
		cols = append(cols, c)
	}
	return New(cols)
}
