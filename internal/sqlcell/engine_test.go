package sqlcell

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/executor"
	"github.com/makolabs/mako/internal/frame"
)

type fakeData struct {
	frames map[string]*frame.Frame
	saved  map[string]*frame.Frame
}

func (d *fakeData) Load(name string) (*frame.Frame, error) {
	f, ok := d.frames[name]
	if !ok {
		return nil, apperror.NotFound("dataset", name)
	}
	return f, nil
}

func (d *fakeData) Save(name string, f *frame.Frame) error {
	if d.saved == nil {
		d.saved = map[string]*frame.Frame{}
	}
	d.saved[name] = f
	return nil
}

func irisData(t *testing.T) *fakeData {
	t.Helper()
	f, err := frame.New([]*frame.Column{
		frame.NewStringColumn("species", []string{"setosa", "setosa", "virginica"}, nil),
		frame.NewFloat64Column("petal", []float64{1.4, 1.5, 5.1}, nil),
		frame.NewInt64Column("rank", []int64{1, 2, 0}, []bool{false, false, true}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fakeData{frames: map[string]*frame.Frame{"iris": f}}
}

func TestExecuteSelect(t *testing.T) {
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql SELECT species, COUNT(*) AS n FROM iris GROUP BY species ORDER BY n DESC")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result failed: %+v", res.Error)
	}
	for _, want := range []string{"shape: (2, 2)", "species", "setosa", "2", "virginica"} {
		if !strings.Contains(res.Stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.Stdout)
		}
	}
}

func TestExecuteNullHandling(t *testing.T) {
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql SELECT species FROM iris WHERE rank IS NULL")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result failed: %+v", res.Error)
	}
	if !strings.Contains(res.Stdout, "virginica") {
		t.Fatalf("output:\n%s", res.Stdout)
	}
}

func TestExecuteSaveAs(t *testing.T) {
	data := irisData(t)
	e := NewEngine(data, time.Second)
	res, err := e.Execute(context.Background(), "@sql\n-- save_as: setosas\nSELECT * FROM iris WHERE species = 'setosa'")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result failed: %+v", res.Error)
	}
	saved, ok := data.saved["setosas"]
	if !ok {
		t.Fatal("save_as did not store the result")
	}
	if saved.NumRows() != 2 {
		t.Fatalf("saved rows = %d", saved.NumRows())
	}
	if got := strings.Join(saved.ColumnNames(), ","); got != "species,petal,rank" {
		t.Fatalf("saved columns = %s", got)
	}
}

func TestExecuteQueryError(t *testing.T) {
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql SELEC bogus")
	if err != nil {
		t.Fatalf("query errors must not become engine faults: %v", err)
	}
	if res.Success {
		t.Fatal("result should be a failure")
	}
	if res.Error.Kind != executor.KindRuntime {
		t.Fatalf("kind = %s", res.Error.Kind)
	}
	if !strings.HasPrefix(res.Error.Message, "SQL error: ") {
		t.Fatalf("message = %q", res.Error.Message)
	}
}

func TestExecuteUnknownTable(t *testing.T) {
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql SELECT * FROM nothere")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !strings.Contains(res.Error.Message, "no such table") {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteEmptyQuery(t *testing.T) {
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql   ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !strings.Contains(res.Error.Message, "empty query") {
		t.Fatalf("result = %+v", res)
	}
}

func TestExecuteCTE(t *testing.T) {
	// CTE names show up in FROM but are not datasets; they must not fail
	// the load phase.
	e := NewEngine(irisData(t), time.Second)
	res, err := e.Execute(context.Background(), "@sql WITH wide AS (SELECT * FROM iris WHERE petal > 2) SELECT COUNT(*) AS n FROM wide")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result failed: %+v", res.Error)
	}
	if !strings.Contains(res.Stdout, "1") {
		t.Fatalf("output:\n%s", res.Stdout)
	}
}
