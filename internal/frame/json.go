package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ReadJSON parses a JSON array of flat objects into a frame. Columns appear
// in first-seen key order; objects missing a key contribute a null. Numbers
// become int64 when every value is integral, float64 otherwise. Nested
// arrays or objects are rejected.
func ReadJSON(r io.Reader) (*Frame, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("json: expected an array of objects: %w", err)
	}

	var order []string
	cells := map[string][]any{}
	rows := 0

	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("json: row %d is not an object: %w", rows, err)
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: %w", err)
			}
			key := tok.(string)
			val, err := scalarToken(dec)
			if err != nil {
				return nil, fmt.Errorf("json: key %q: %w", key, err)
			}
			if _, seen := cells[key]; !seen {
				order = append(order, key)
				// Backfill rows that predate this key.
				cells[key] = make([]any, rows)
			}
			if len(cells[key]) != rows {
				return nil, fmt.Errorf("json: duplicate key %q in row %d", key, rows)
			}
			cells[key] = append(cells[key], val)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		rows++
		for _, key := range order {
			if len(cells[key]) < rows {
				cells[key] = append(cells[key], nil)
			}
		}
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	cols := make([]*Column, len(order))
	for j, name := range order {
		col, err := ColumnFromValues(name, normalizeNumbers(cells[name]))
		if err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		cols[j] = col
	}
	return New(cols)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// scalarToken reads one value token and rejects nested structures.
func scalarToken(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		return nil, errors.New("nested arrays and objects are not supported")
	case nil:
		return nil, nil
	case string:
		return v, nil
	case bool:
		return v, nil
	case json.Number:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value %v", v)
	}
}

// normalizeNumbers resolves json.Number cells to int64 where every number
// in the column is integral, float64 otherwise.
func normalizeNumbers(cells []any) []any {
	integral := true
	for _, c := range cells {
		n, ok := c.(json.Number)
		if !ok {
			continue
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			integral = false
			break
		}
	}
	out := make([]any, len(cells))
	for i, c := range cells {
		n, ok := c.(json.Number)
		if !ok {
			out[i] = c
			continue
		}
		if integral {
			v, _ := strconv.ParseInt(n.String(), 10, 64)
			out[i] = v
		} else {
			v, _ := n.Float64()
			out[i] = v
		}
	}
	return out
}
