package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultRenderRows is how many rows Render shows unless told otherwise.
const DefaultRenderRows = 10

// Render formats the frame as an aligned text table, truncated to maxRows
// rows. A shape line precedes the table and a trailer notes elided rows.
func (f *Frame) Render(maxRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "shape: (%d, %d)\n", f.rows, len(f.cols))
	if len(f.cols) == 0 {
		return b.String()
	}

	shown := f.rows
	if maxRows >= 0 && shown > maxRows {
		shown = maxRows
	}

	widths := make([]int, len(f.cols))
	cells := make([][]string, shown)
	for j, c := range f.cols {
		widths[j] = len(c.name)
	}
	for i := 0; i < shown; i++ {
		cells[i] = make([]string, len(f.cols))
		for j, c := range f.cols {
			s := renderCell(c, i)
			cells[i][j] = s
			if len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}

	writeRow := func(get func(j int) string) {
		for j := range f.cols {
			if j > 0 {
				b.WriteString("  ")
			}
			s := get(j)
			b.WriteString(s)
			if j < len(f.cols)-1 {
				b.WriteString(strings.Repeat(" ", widths[j]-len(s)))
			}
		}
		b.WriteByte('\n')
	}

	writeRow(func(j int) string { return f.cols[j].name })
	writeRow(func(j int) string { return strings.Repeat("-", widths[j]) })
	for i := 0; i < shown; i++ {
		row := cells[i]
		writeRow(func(j int) string { return row[j] })
	}
	if shown < f.rows {
		fmt.Fprintf(&b, "... (%d more rows)\n", f.rows-shown)
	}
	return b.String()
}

func renderCell(c *Column, i int) string {
	cell, null := c.Cell(i)
	if null {
		return "null"
	}
	switch v := cell.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatFloat(v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return v.(string)
	}
}

// formatFloat keeps a trailing ".0" on integral values so float columns
// stay visually distinct from int columns.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eENI") {
		s += ".0"
	}
	return s
}
