package frame

import (
	"strings"
	"testing"
)

func testFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := New([]*Column{
		NewStringColumn("name", []string{"a", "bc", "def"}, nil),
		NewInt64Column("n", []int64{1, 22, 0}, []bool{false, false, true}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestNewValidation(t *testing.T) {
	_, err := New([]*Column{
		NewInt64Column("a", []int64{1}, nil),
		NewInt64Column("a", []int64{2}, nil),
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate column") {
		t.Fatalf("want duplicate column error, got %v", err)
	}

	_, err = New([]*Column{
		NewInt64Column("a", []int64{1, 2}, nil),
		NewInt64Column("b", []int64{3}, nil),
	})
	if err == nil || !strings.Contains(err.Error(), "rows") {
		t.Fatalf("want row mismatch error, got %v", err)
	}
}

func TestColumnCell(t *testing.T) {
	f := testFrame(t)
	col, ok := f.Column("n")
	if !ok {
		t.Fatal("column n not found")
	}
	if v, null := col.Cell(1); null || v.(int64) != 22 {
		t.Fatalf("Cell(1) = %v, %v", v, null)
	}
	if _, null := col.Cell(2); !null {
		t.Fatal("Cell(2) should be null")
	}
}

func TestSliceClamps(t *testing.T) {
	f := testFrame(t)
	cases := []struct {
		start, end, want int
	}{
		{0, 3, 3},
		{1, 2, 1},
		{-5, 99, 3},
		{2, 1, 0},
	}
	for _, c := range cases {
		got := f.Slice(c.start, c.end)
		if got.NumRows() != c.want {
			t.Errorf("Slice(%d, %d).NumRows() = %d, want %d", c.start, c.end, got.NumRows(), c.want)
		}
	}

	s := f.Slice(1, 3)
	col, _ := s.Column("name")
	if v, _ := col.Cell(0); v.(string) != "bc" {
		t.Fatalf("sliced cell = %v, want bc", v)
	}
}

func TestRows(t *testing.T) {
	f := testFrame(t)
	rows := f.Rows()
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d", len(rows))
	}
	if rows[0]["name"] != "a" || rows[0]["n"] != int64(1) {
		t.Fatalf("row 0 = %v", rows[0])
	}
	if rows[2]["n"] != nil {
		t.Fatalf("null cell should be nil, got %v", rows[2]["n"])
	}
}

func TestSchema(t *testing.T) {
	f := testFrame(t)
	schema := f.Schema()
	if len(schema) != 2 {
		t.Fatalf("len(schema) = %d", len(schema))
	}
	if schema[0].Column != "name" || schema[0].Type != "string" {
		t.Fatalf("schema[0] = %+v", schema[0])
	}
	if schema[1].Column != "n" || schema[1].Type != "int64" {
		t.Fatalf("schema[1] = %+v", schema[1])
	}
}

func TestColumnFromValues(t *testing.T) {
	t.Run("ints", func(t *testing.T) {
		col, err := ColumnFromValues("x", []any{int64(1), nil, int64(3)})
		if err != nil {
			t.Fatal(err)
		}
		if col.Kind() != Int64 {
			t.Fatalf("kind = %v", col.Kind())
		}
		if _, null := col.Cell(1); !null {
			t.Fatal("cell 1 should be null")
		}
	})

	t.Run("numeric mix widens to float", func(t *testing.T) {
		col, err := ColumnFromValues("x", []any{int64(1), 2.5})
		if err != nil {
			t.Fatal(err)
		}
		if col.Kind() != Float64 {
			t.Fatalf("kind = %v", col.Kind())
		}
		if v, _ := col.Cell(0); v.(float64) != 1.0 {
			t.Fatalf("cell 0 = %v", v)
		}
	})

	t.Run("bytes become strings", func(t *testing.T) {
		col, err := ColumnFromValues("x", []any{[]byte("hi"), "yo"})
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := col.Cell(0); v.(string) != "hi" {
			t.Fatalf("cell 0 = %v", v)
		}
	})

	t.Run("mixed types rejected", func(t *testing.T) {
		if _, err := ColumnFromValues("x", []any{int64(1), "a"}); err == nil {
			t.Fatal("want error for int/string mix")
		}
	})

	t.Run("all null defaults to string", func(t *testing.T) {
		col, err := ColumnFromValues("x", []any{nil, nil})
		if err != nil {
			t.Fatal(err)
		}
		if col.Kind() != String || col.Len() != 2 {
			t.Fatalf("kind = %v len = %d", col.Kind(), col.Len())
		}
	})
}

func TestRender(t *testing.T) {
	f, err := New([]*Column{
		NewStringColumn("name", []string{"a", "bc"}, nil),
		NewInt64Column("n", []int64{1, 22}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "shape: (2, 2)\n" +
		"name  n\n" +
		"----  --\n" +
		"a     1\n" +
		"bc    22\n"
	if got := f.Render(10); got != want {
		t.Fatalf("Render:\n%q\nwant:\n%q", got, want)
	}
}

func TestRenderTruncates(t *testing.T) {
	f, err := New([]*Column{
		NewInt64Column("n", []int64{1, 2, 3, 4}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	got := f.Render(2)
	if !strings.Contains(got, "... (2 more rows)") {
		t.Fatalf("missing truncation trailer:\n%s", got)
	}
	if strings.Contains(got, "\n3\n") {
		t.Fatalf("row beyond limit rendered:\n%s", got)
	}
}

func TestRenderNullAndFloat(t *testing.T) {
	f, err := New([]*Column{
		NewFloat64Column("v", []float64{2, 0.5}, []bool{false, true}),
	})
	if err != nil {
		t.Fatal(err)
	}
	got := f.Render(10)
	if !strings.Contains(got, "2.0") {
		t.Fatalf("integral float should render with .0:\n%s", got)
	}
	if !strings.Contains(got, "null") {
		t.Fatalf("null cell should render as null:\n%s", got)
	}
}
