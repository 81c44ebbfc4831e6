package frame

import (
	"strings"
	"testing"
)

func TestReadJSONColumnsInDocumentOrder(t *testing.T) {
	in := `[{"x": 1, "y": "a"}, {"y": "b", "z": 2.5}, {"x": 3}]`
	f, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got := strings.Join(f.ColumnNames(), ","); got != "x,y,z" {
		t.Fatalf("columns = %s", got)
	}
	if f.NumRows() != 3 {
		t.Fatalf("rows = %d", f.NumRows())
	}

	x, _ := f.Column("x")
	if x.Kind() != Int64 {
		t.Fatalf("x kind = %v", x.Kind())
	}
	if _, null := x.Cell(1); !null {
		t.Fatal("x[1] should be null (key absent)")
	}
	if v, _ := x.Cell(2); v.(int64) != 3 {
		t.Fatalf("x[2] = %v", v)
	}

	z, _ := f.Column("z")
	if z.Kind() != Float64 {
		t.Fatalf("z kind = %v", z.Kind())
	}
	if _, null := z.Cell(0); !null {
		t.Fatal("z[0] should be null (backfilled)")
	}
}

func TestReadJSONIntPromotion(t *testing.T) {
	in := `[{"v": 1}, {"v": 2.5}]`
	f, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	v, _ := f.Column("v")
	if v.Kind() != Float64 {
		t.Fatalf("kind = %v, want float64", v.Kind())
	}
	if cell, _ := v.Cell(0); cell.(float64) != 1.0 {
		t.Fatalf("cell 0 = %v", cell)
	}
}

func TestReadJSONNullLiteral(t *testing.T) {
	in := `[{"v": null}, {"v": "ok"}]`
	f, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	col, _ := f.Column("v")
	if _, null := col.Cell(0); !null {
		t.Fatal("explicit null should be null")
	}
	if cell, _ := col.Cell(1); cell.(string) != "ok" {
		t.Fatalf("cell 1 = %v", cell)
	}
}

func TestReadJSONRejects(t *testing.T) {
	cases := []struct {
		name, in string
	}{
		{"top-level object", `{"x": 1}`},
		{"nested array", `[{"x": [1, 2]}]`},
		{"nested object", `[{"x": {"y": 1}}]`},
		{"scalar row", `[42]`},
		{"mixed types", `[{"x": 1}, {"x": "a"}]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ReadJSON(strings.NewReader(c.in)); err == nil {
				t.Fatalf("want error for %s", c.in)
			}
		})
	}
}

func TestReadJSONEmptyArray(t *testing.T) {
	f, err := ReadJSON(strings.NewReader(`[]`))
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 0 || f.NumColumns() != 0 {
		t.Fatalf("shape = (%d, %d)", f.NumRows(), f.NumColumns())
	}
}
