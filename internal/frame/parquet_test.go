package frame

import (
	"bytes"
	"strings"
	"testing"
)

func TestParquetRoundTrip(t *testing.T) {
	orig, err := New([]*Column{
		NewInt64Column("id", []int64{1, 2, 0}, []bool{false, false, true}),
		NewFloat64Column("score", []float64{0.5, 0, 2.25}, []bool{false, true, false}),
		NewBoolColumn("active", []bool{true, false, true}, nil),
		NewStringColumn("name", []string{"a", "", "c"}, []bool{false, true, false}),
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Write(&buf, orig); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	// Column order survives even though parquet stores fields sorted.
	if names := strings.Join(got.ColumnNames(), ","); names != "id,score,active,name" {
		t.Fatalf("columns = %s", names)
	}
	if got.NumRows() != orig.NumRows() {
		t.Fatalf("rows = %d, want %d", got.NumRows(), orig.NumRows())
	}

	for _, name := range orig.ColumnNames() {
		want, _ := orig.Column(name)
		have, ok := got.Column(name)
		if !ok {
			t.Fatalf("column %q missing", name)
		}
		if have.Kind() != want.Kind() {
			t.Fatalf("column %q kind = %v, want %v", name, have.Kind(), want.Kind())
		}
		for i := 0; i < orig.NumRows(); i++ {
			wc, wn := want.Cell(i)
			hc, hn := have.Cell(i)
			if wn != hn || (!wn && wc != hc) {
				t.Fatalf("column %q row %d = (%v, %v), want (%v, %v)", name, i, hc, hn, wc, wn)
			}
		}
	}
}

func TestParquetWriteRejectsEmptyFrame(t *testing.T) {
	f, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, f); err == nil {
		t.Fatal("want error for frame with no columns")
	}
}

func TestParquetFileRoundTrip(t *testing.T) {
	f, err := New([]*Column{
		NewStringColumn("city", []string{"oslo", "lima"}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/cities.parquet"
	if err := WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d", got.NumRows())
	}
	col, _ := got.Column("city")
	if v, _ := col.Cell(1); v.(string) != "lima" {
		t.Fatalf("cell = %v", v)
	}
}
