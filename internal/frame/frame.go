// Package frame implements the columnar table that flows between the
// dataset store, the SQL engine, and scripted code. A Frame is immutable
// once built; slicing shares column storage.
package frame

import "fmt"

// Kind enumerates the cell types a column can hold.
type Kind int

const (
	Int64 Kind = iota
	Float64
	Bool
	String
)

func (k Kind) String() string {
	switch k {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a typed vector with a per-cell null mask. Exactly one of the
// value slices is populated, matching the column's kind.
type Column struct {
	name   string
	kind   Kind
	ints   []int64
	floats []float64
	bools  []bool
	strs   []string
	nulls  []bool
}

func (c *Column) Name() string { return c.name }
func (c *Column) Kind() Kind   { return c.kind }

func (c *Column) Len() int {
	switch c.kind {
	case Int64:
		return len(c.ints)
	case Float64:
		return len(c.floats)
	case Bool:
		return len(c.bools)
	default:
		return len(c.strs)
	}
}

// Cell returns the value at row i and whether it is null. Values are
// int64, float64, bool, or string depending on the column kind.
func (c *Column) Cell(i int) (any, bool) {
	if c.nulls[i] {
		return nil, true
	}
	switch c.kind {
	case Int64:
		return c.ints[i], false
	case Float64:
		return c.floats[i], false
	case Bool:
		return c.bools[i], false
	default:
		return c.strs[i], false
	}
}

func (c *Column) slice(start, end int) *Column {
	out := &Column{name: c.name, kind: c.kind, nulls: c.nulls[start:end]}
	switch c.kind {
	case Int64:
		out.ints = c.ints[start:end]
	case Float64:
		out.floats = c.floats[start:end]
	case Bool:
		out.bools = c.bools[start:end]
	default:
		out.strs = c.strs[start:end]
	}
	return out
}

// NewInt64Column builds an int64 column. nulls may be nil for no nulls.
func NewInt64Column(name string, vals []int64, nulls []bool) *Column {
	return &Column{name: name, kind: Int64, ints: vals, nulls: fillNulls(nulls, len(vals))}
}

// NewFloat64Column builds a float64 column. nulls may be nil for no nulls.
func NewFloat64Column(name string, vals []float64, nulls []bool) *Column {
	return &Column{name: name, kind: Float64, floats: vals, nulls: fillNulls(nulls, len(vals))}
}

// NewBoolColumn builds a bool column. nulls may be nil for no nulls.
func NewBoolColumn(name string, vals []bool, nulls []bool) *Column {
	return &Column{name: name, kind: Bool, bools: vals, nulls: fillNulls(nulls, len(vals))}
}

// NewStringColumn builds a string column. nulls may be nil for no nulls.
func NewStringColumn(name string, vals []string, nulls []bool) *Column {
	return &Column{name: name, kind: String, strs: vals, nulls: fillNulls(nulls, len(vals))}
}

func fillNulls(nulls []bool, n int) []bool {
	if nulls == nil {
		return make([]bool, n)
	}
	return nulls
}

// ColumnFromValues infers a column from loosely typed cells. Accepted cell
// types are nil (null), int64, float64, bool, string, and []byte. A mix of
// int64 and float64 widens to float64; any other mix is an error.
func ColumnFromValues(name string, cells []any) (*Column, error) {
	var hasInt, hasFloat, hasBool, hasStr bool
	for _, cell := range cells {
		switch cell.(type) {
		case nil:
		case int64:
			hasInt = true
		case float64:
			hasFloat = true
		case bool:
			hasBool = true
		case string, []byte:
			hasStr = true
		default:
			return nil, fmt.Errorf("column %q: unsupported value type %T", name, cell)
		}
	}

	nulls := make([]bool, len(cells))
	switch {
	case hasStr && !hasInt && !hasFloat && !hasBool:
		vals := make([]string, len(cells))
		for i, cell := range cells {
			switch v := cell.(type) {
			case nil:
				nulls[i] = true
			case string:
				vals[i] = v
			case []byte:
				vals[i] = string(v)
			}
		}
		return NewStringColumn(name, vals, nulls), nil
	case hasBool && !hasInt && !hasFloat && !hasStr:
		vals := make([]bool, len(cells))
		for i, cell := range cells {
			if cell == nil {
				nulls[i] = true
				continue
			}
			vals[i] = cell.(bool)
		}
		return NewBoolColumn(name, vals, nulls), nil
	case hasFloat && !hasBool && !hasStr:
		vals := make([]float64, len(cells))
		for i, cell := range cells {
			switch v := cell.(type) {
			case nil:
				nulls[i] = true
			case int64:
				vals[i] = float64(v)
			case float64:
				vals[i] = v
			}
		}
		return NewFloat64Column(name, vals, nulls), nil
	case hasInt && !hasFloat && !hasBool && !hasStr:
		vals := make([]int64, len(cells))
		for i, cell := range cells {
			if cell == nil {
				nulls[i] = true
				continue
			}
			vals[i] = cell.(int64)
		}
		return NewInt64Column(name, vals, nulls), nil
	case !hasInt && !hasFloat && !hasBool && !hasStr:
		// All nulls: default to a string column.
		for i := range nulls {
			nulls[i] = true
		}
		return NewStringColumn(name, make([]string, len(cells)), nulls), nil
	default:
		return nil, fmt.Errorf("column %q has mixed types", name)
	}
}

// Frame is an ordered set of equal-length columns with unique names.
type Frame struct {
	cols   []*Column
	byName map[string]int
	rows   int
}

// New validates column lengths and name uniqueness and builds a Frame.
// Column order is preserved.
func New(cols []*Column) (*Frame, error) {
	f := &Frame{cols: cols, byName: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c.name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := f.byName[c.name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.name)
		}
		f.byName[c.name] = i
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.name, c.Len(), f.rows)
		}
	}
	return f, nil
}

func (f *Frame) NumRows() int    { return f.rows }
func (f *Frame) NumColumns() int { return len(f.cols) }

// ColumnNames returns the column names in frame order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Columns returns the columns in frame order. Callers must not mutate them.
func (f *Frame) Columns() []*Column { return f.cols }

// Slice returns the half-open row range [start, end), clamped to the
// frame's bounds. Storage is shared with the receiver.
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > f.rows {
		end = f.rows
	}
	if start > end {
		start = end
	}
	out := &Frame{cols: make([]*Column, len(f.cols)), byName: f.byName, rows: end - start}
	for i, c := range f.cols {
		out.cols[i] = c.slice(start, end)
	}
	return out
}

// Row materializes row i as a map keyed by column name. Null cells map
// to nil.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		cell, null := c.Cell(i)
		if null {
			row[c.name] = nil
		} else {
			row[c.name] = cell
		}
	}
	return row
}

// Rows materializes every row of the frame. Intended for API responses on
// pre-sliced frames, not for bulk traversal.
func (f *Frame) Rows() []map[string]any {
	rows := make([]map[string]any, f.rows)
	for i := range rows {
		rows[i] = f.Row(i)
	}
	return rows
}

// FieldSchema describes one column for schema listings.
type FieldSchema struct {
	Column string `json:"column"`
	Type   string `json:"type"`
}

// Schema returns the per-column name and type in frame order.
func (f *Frame) Schema() []FieldSchema {
	out := make([]FieldSchema, len(f.cols))
	for i, c := range f.cols {
		out[i] = FieldSchema{Column: c.name, Type: c.kind.String()}
	}
	return out
}
