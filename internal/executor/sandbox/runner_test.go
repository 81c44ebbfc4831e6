package sandbox_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/makolabs/mako/internal/executor"
	"github.com/makolabs/mako/internal/executor/sandbox"
	"github.com/makolabs/mako/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRunner(cfg sandbox.Config) *sandbox.Runner {
	return sandbox.New(cfg, testLogger(), nil, nil)
}

// run executes code and fails the test on an internal fault; everything the
// snippet did wrong is expected inside the result, never as a Go error.
func run(t *testing.T, r *sandbox.Runner, code string) *executor.ExecutionResult {
	t.Helper()
	res, err := r.Execute(context.Background(), executor.ExecutionRequest{Code: code})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// fakeDatasets is an in-memory DatasetAPI.
type fakeDatasets struct {
	mu     sync.Mutex
	frames map[string]*frame.Frame
}

func newFakeDatasets(t *testing.T) *fakeDatasets {
	t.Helper()
	f, err := frame.New([]*frame.Column{
		frame.NewStringColumn("region", []string{"north", "south", "west"}, nil),
		frame.NewInt64Column("amount", []int64{10, 20, 30}, nil),
	})
	require.NoError(t, err)
	return &fakeDatasets{frames: map[string]*frame.Frame{"sales": f}}
}

func (d *fakeDatasets) Load(name string) (*frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.frames[name]
	if !ok {
		return nil, fmt.Errorf("dataset '%s' not found", name)
	}
	return f, nil
}

func (d *fakeDatasets) Save(name string, f *frame.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames[name] = f
	return nil
}

func (d *fakeDatasets) Names() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.frames))
	for n := range d.frames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// staticFunctions is a canned FunctionSource.
type staticFunctions map[string]string

func (s staticFunctions) Functions(ctx context.Context) (map[string]string, error) {
	return s, nil
}

// failingFunctions simulates a registry backend outage.
type failingFunctions struct{}

func (failingFunctions) Functions(ctx context.Context) (map[string]string, error) {
	return nil, fmt.Errorf("registry unavailable")
}

func TestExecuteSuccess(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	res := run(t, r, `print("hello")`)
	assert.True(t, res.Success)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.Nil(t, res.Error)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestExecuteImportDenied(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	// The import gate is static: the print on line 1 must never run.
	code := strings.Join([]string{
		`print("should never run")`,
		`import os`,
		`os.system("ls")`,
	}, "\n")

	res := run(t, r, code)
	assert.False(t, res.Success)
	assert.Empty(t, res.Stdout)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindImport, res.Error.Kind)
	assert.Equal(t, "module 'os' is not permitted", res.Error.Message)
	assert.Equal(t, 2, res.Error.Line)
}

func TestExecuteFromImportDenied(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	res := run(t, r, `from os import path`)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindImport, res.Error.Kind)
	assert.Equal(t, "module 'os' is not permitted", res.Error.Message)
}

func TestExecuteRuntimeFailure(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	code := strings.Join([]string{
		`print("partial")`,
		`1/0`,
	}, "\n")

	res := run(t, r, code)
	assert.False(t, res.Success)
	assert.Equal(t, "partial\n", res.Stdout, "output before the failure must be kept")
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindRuntime, res.Error.Kind)
	assert.Equal(t, "division by zero", res.Error.Message)
	assert.Equal(t, 2, res.Error.Line)
}

func TestExecuteSyntaxError(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	res := run(t, r, `def f(:`)
	assert.False(t, res.Success)
	assert.Empty(t, res.Stdout)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindSyntax, res.Error.Kind)
	assert.Equal(t, "expected parameter name, found ':'", res.Error.Message)
	assert.Equal(t, 1, res.Error.Line)
	assert.Equal(t, 7, res.Error.Column)
}

func TestExecuteTimeout(t *testing.T) {
	// A generous step budget so the wall clock, not the step limit, ends the
	// loop.
	r := newTestRunner(sandbox.Config{
		Timeout:  50 * time.Millisecond,
		MaxSteps: 500_000_000,
	})

	res := run(t, r, `while True: pass`)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindTimeout, res.Error.Kind)
	assert.Equal(t, "execution timed out after 50ms", res.Error.Message)
	assert.GreaterOrEqual(t, res.Duration, 50*time.Millisecond)
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestExecuteStepLimit(t *testing.T) {
	r := newTestRunner(sandbox.Config{MaxSteps: 5000})

	res := run(t, r, `while True: pass`)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindRuntime, res.Error.Kind)
	assert.Equal(t, "execution step limit exceeded", res.Error.Message)
}

func TestExecuteRecursionLimit(t *testing.T) {
	r := newTestRunner(sandbox.Config{MaxRecursion: 32})

	code := strings.Join([]string{
		`def f():`,
		`    return f()`,
		`f()`,
	}, "\n")

	res := run(t, r, code)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindRuntime, res.Error.Kind)
	assert.Equal(t, "maximum recursion depth exceeded", res.Error.Message)
}

func TestExecuteOutputCap(t *testing.T) {
	r := newTestRunner(sandbox.Config{MaxOutputBytes: 64})

	code := strings.Join([]string{
		`for i in range(1000):`,
		`    print("xxxxxxxxxx")`,
	}, "\n")

	res := run(t, r, code)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, executor.KindRuntime, res.Error.Kind)
	assert.Equal(t, "output limit exceeded", res.Error.Message)
	assert.Len(t, res.Stdout, 64, "bytes that fit under the cap are kept")
	assert.True(t, strings.HasPrefix(res.Stdout, "xxxxxxxxxx\n"))
}

func TestExecuteRestrictedNames(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	t.Run("eval is rejected statically", func(t *testing.T) {
		res := run(t, r, `eval("1 + 1")`)
		assert.False(t, res.Success)
		assert.Empty(t, res.Stdout)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindSyntax, res.Error.Kind)
		assert.Equal(t, "use of 'eval' is not allowed", res.Error.Message)
	})

	t.Run("underscore attributes are rejected", func(t *testing.T) {
		res := run(t, r, `print("x".__class__)`)
		assert.False(t, res.Success)
		assert.Empty(t, res.Stdout)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindSyntax, res.Error.Kind)
		assert.Equal(t, "access to attribute '__class__' is not allowed", res.Error.Message)
	})
}

func TestExecuteIdempotent(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	t.Run("pure snippet", func(t *testing.T) {
		code := `print(sorted([3, 1, 2]))`
		first := run(t, r, code)
		second := run(t, r, code)
		assert.True(t, first.Success)
		assert.True(t, second.Success)
		assert.Equal(t, "[1, 2, 3]\n", first.Stdout)
		assert.Equal(t, first.Stdout, second.Stdout)
	})

	t.Run("seeded rng does not leak across runs", func(t *testing.T) {
		code := strings.Join([]string{
			`import random`,
			`random.seed(99)`,
			`print(random.randint(1, 1000000))`,
		}, "\n")
		first := run(t, r, code)
		second := run(t, r, code)
		require.True(t, first.Success)
		require.True(t, second.Success)
		assert.Equal(t, first.Stdout, second.Stdout)
	})
}

func TestExecuteConcurrent(t *testing.T) {
	r := newTestRunner(sandbox.Config{MaxConcurrent: 4})

	const n = 16
	outs := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("x = %d\nprint(x * x)", i)
			res, err := r.Execute(context.Background(), executor.ExecutionRequest{Code: code})
			if err != nil {
				errs[i] = err
				return
			}
			outs[i] = res.Stdout
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("%d\n", i*i), outs[i], "execution %d saw another run's state", i)
	}
}

func TestExecuteInternalFault(t *testing.T) {
	r := sandbox.New(sandbox.Config{}, testLogger(), nil, failingFunctions{})

	res, err := r.Execute(context.Background(), executor.ExecutionRequest{Code: `import funcs`})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "registry unavailable")
}

func TestDatasetsModule(t *testing.T) {
	t.Run("load, inspect, save", func(t *testing.T) {
		store := newFakeDatasets(t)
		r := sandbox.New(sandbox.Config{}, testLogger(), store, nil)

		code := strings.Join([]string{
			`import datasets`,
			`sales = datasets.load("sales")`,
			`print(sales.num_rows())`,
			`print(sales.columns())`,
			`print(sales.column("amount"))`,
			`datasets.save("backup", sales)`,
			`print(datasets.names())`,
		}, "\n")

		res := run(t, r, code)
		require.Nil(t, res.Error, "unexpected failure: %+v", res.Error)
		want := strings.Join([]string{
			`3`,
			`['region', 'amount']`,
			`[10, 20, 30]`,
			`['backup', 'sales']`,
		}, "\n") + "\n"
		assert.Equal(t, want, res.Stdout)
		assert.Contains(t, store.frames, "backup")
	})

	t.Run("unknown dataset", func(t *testing.T) {
		r := sandbox.New(sandbox.Config{}, testLogger(), newFakeDatasets(t), nil)

		res := run(t, r, "import datasets\ndatasets.load(\"ghost\")")
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindRuntime, res.Error.Kind)
		assert.Equal(t, "dataset 'ghost' not found", res.Error.Message)
	})

	t.Run("absent without a backing store", func(t *testing.T) {
		r := newTestRunner(sandbox.Config{})

		res := run(t, r, `import datasets`)
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindImport, res.Error.Kind)
		assert.Equal(t, "module 'datasets' is not permitted", res.Error.Message)
	})
}

func TestFuncsModule(t *testing.T) {
	t.Run("saved function is callable", func(t *testing.T) {
		src := staticFunctions{"double": "def double(x):\n    return x * 2"}
		r := sandbox.New(sandbox.Config{}, testLogger(), nil, src)

		res := run(t, r, "import funcs\nprint(funcs.double(21))")
		require.Nil(t, res.Error, "unexpected failure: %+v", res.Error)
		assert.Equal(t, "42\n", res.Stdout)
	})

	t.Run("broken saved function fails the import", func(t *testing.T) {
		src := staticFunctions{"broken": "def broken(:"}
		r := sandbox.New(sandbox.Config{}, testLogger(), nil, src)

		res := run(t, r, `import funcs`)
		assert.False(t, res.Success)
		require.NotNil(t, res.Error)
		assert.Equal(t, executor.KindImport, res.Error.Kind)
		assert.Equal(t, "saved function 'broken' is invalid: expected parameter name, found ':'", res.Error.Message)
	})
}

func TestModules(t *testing.T) {
	base := []string{"math", "random", "statistics", "json"}

	r := newTestRunner(sandbox.Config{})
	assert.ElementsMatch(t, base, r.Modules())

	full := sandbox.New(sandbox.Config{}, testLogger(), newFakeDatasets(t), staticFunctions{})
	assert.ElementsMatch(t, append(base, "datasets", "funcs"), full.Modules())
}

func TestLint(t *testing.T) {
	r := newTestRunner(sandbox.Config{})

	t.Run("syntax error", func(t *testing.T) {
		diags := r.Lint(`def f(:`)
		require.Len(t, diags, 1)
		assert.Equal(t, sandbox.Diagnostic{
			Line:    1,
			Column:  7,
			Message: "expected parameter name, found ':'",
			Code:    "E999",
		}, diags[0])
	})

	t.Run("reports every violation", func(t *testing.T) {
		source := strings.Join([]string{
			`import os`,
			`eval("1 + 1")`,
			`rows.__dict__`,
		}, "\n")

		diags := r.Lint(source)
		require.Len(t, diags, 3)

		assert.Equal(t, "S101", diags[0].Code)
		assert.Equal(t, 1, diags[0].Line)
		assert.Equal(t, "module 'os' is not permitted", diags[0].Message)

		assert.Equal(t, "S100", diags[1].Code)
		assert.Equal(t, 2, diags[1].Line)
		assert.Equal(t, "use of 'eval' is not allowed", diags[1].Message)

		assert.Equal(t, "S100", diags[2].Code)
		assert.Equal(t, 3, diags[2].Line)
		assert.Equal(t, "access to attribute '__dict__' is not allowed", diags[2].Message)
	})

	t.Run("clean source", func(t *testing.T) {
		diags := r.Lint("import math\nprint(math.pi)")
		assert.NotNil(t, diags)
		assert.Empty(t, diags)
	})
}
