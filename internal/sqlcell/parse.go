// Package sqlcell runs notebook cells that start with @sql: it loads the
// datasets a query references into an in-memory SQLite database, executes
// the query, and renders the result as a text table.
package sqlcell

import (
	"regexp"
	"strings"
)

const sqlPrefix = "@sql"

var (
	saveAsRe = regexp.MustCompile(`--\s*save_as:\s*(\w+)`)
	tableRe  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_]\w*)`)
)

// IsSQL reports whether the source is a SQL cell.
func IsSQL(code string) bool {
	return strings.HasPrefix(strings.TrimSpace(code), sqlPrefix)
}

// cell is a parsed @sql source: the bare query, the optional save_as
// target, and the table names the query references.
type cell struct {
	query  string
	saveAs string
	tables []string
}

// parseCell strips the @sql marker and the save_as directive and extracts
// referenced table names from FROM/JOIN clauses, first-appearance order.
func parseCell(code string) cell {
	c := cell{}
	src := strings.TrimSpace(code)
	src = strings.TrimPrefix(src, sqlPrefix)

	if m := saveAsRe.FindStringSubmatch(src); m != nil {
		c.saveAs = m[1]
		src = saveAsRe.ReplaceAllString(src, "")
	}
	c.query = strings.TrimSpace(src)

	seen := map[string]bool{}
	for _, m := range tableRe.FindAllStringSubmatch(c.query, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			c.tables = append(c.tables, name)
		}
	}
	return c
}
