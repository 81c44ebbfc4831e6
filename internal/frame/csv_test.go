package frame

import (
	"strings"
	"testing"
)

func TestReadCSVInference(t *testing.T) {
	in := "id,score,active,label\n" +
		"1,1.5,true,x\n" +
		",2,false,y\n" +
		"3,2.25,true,\n"
	f, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got := f.ColumnNames(); strings.Join(got, ",") != "id,score,active,label" {
		t.Fatalf("columns = %v", got)
	}

	wantKinds := map[string]Kind{"id": Int64, "score": Float64, "active": Bool, "label": String}
	for name, kind := range wantKinds {
		col, ok := f.Column(name)
		if !ok {
			t.Fatalf("column %q missing", name)
		}
		if col.Kind() != kind {
			t.Errorf("column %q kind = %v, want %v", name, col.Kind(), kind)
		}
	}

	id, _ := f.Column("id")
	if _, null := id.Cell(1); !null {
		t.Fatal("empty int cell should be null")
	}
	label, _ := f.Column("label")
	if _, null := label.Cell(2); !null {
		t.Fatal("empty string cell should be null")
	}
	active, _ := f.Column("active")
	if v, _ := active.Cell(0); v.(bool) != true {
		t.Fatalf("active[0] = %v", v)
	}
}

func TestReadCSVNumericStringsStayStrings(t *testing.T) {
	in := "code\n007\nabc\n"
	f, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	col, _ := f.Column("code")
	if col.Kind() != String {
		t.Fatalf("kind = %v, want string", col.Kind())
	}
	if v, _ := col.Cell(0); v.(string) != "007" {
		t.Fatalf("cell = %v", v)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("want error for missing header")
	}
	if _, err := ReadCSV(strings.NewReader("a,b\n1\n")); err == nil {
		t.Fatal("want error for ragged record")
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a,b\n"))
	if err != nil {
		t.Fatal(err)
	}
	if f.NumRows() != 0 || f.NumColumns() != 2 {
		t.Fatalf("shape = (%d, %d)", f.NumRows(), f.NumColumns())
	}
}
