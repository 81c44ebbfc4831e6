package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReadCSV parses CSV with a header row into a frame. Column types are
// inferred from the data: int64, then float64, then bool, falling back to
// string. Empty cells are null regardless of the inferred type.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}

	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		for j := range header {
			raw[j] = append(raw[j], rec[j])
		}
	}

	cols := make([]*Column, len(header))
	for j, name := range header {
		cols[j] = inferColumn(name, raw[j])
	}
	return New(cols)
}

// inferColumn picks the narrowest kind every non-empty cell parses as.
func inferColumn(name string, cells []string) *Column {
	isInt, isFloat, isBool := true, true, true
	for _, s := range cells {
		if s == "" {
			continue
		}
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if !csvBoolean(s) {
				isBool = false
			}
		}
	}

	nulls := make([]bool, len(cells))
	switch {
	case isInt:
		vals := make([]int64, len(cells))
		for i, s := range cells {
			if s == "" {
				nulls[i] = true
				continue
			}
			vals[i], _ = strconv.ParseInt(s, 10, 64)
		}
		return NewInt64Column(name, vals, nulls)
	case isFloat:
		vals := make([]float64, len(cells))
		for i, s := range cells {
			if s == "" {
				nulls[i] = true
				continue
			}
			vals[i], _ = strconv.ParseFloat(s, 64)
		}
		return NewFloat64Column(name, vals, nulls)
	case isBool:
		vals := make([]bool, len(cells))
		for i, s := range cells {
			if s == "" {
				nulls[i] = true
				continue
			}
			vals[i] = s == "true" || s == "True" || s == "TRUE"
		}
		return NewBoolColumn(name, vals, nulls)
	default:
		vals := make([]string, len(cells))
		for i, s := range cells {
			if s == "" {
				nulls[i] = true
				continue
			}
			vals[i] = s
		}
		return NewStringColumn(name, vals, nulls)
	}
}

func csvBoolean(s string) bool {
	switch s {
	case "true", "false", "True", "False", "TRUE", "FALSE":
		return true
	default:
		return false
	}
}
