package sandbox

import (
	"fmt"

	"github.com/makolabs/mako/internal/frame"
)

// DatasetAPI is the capability surface scripts reach through the datasets
// module. Implementations decide where data lives; the sandbox only passes
// names and frames across this boundary, never paths or handles.
type DatasetAPI interface {
	Load(name string) (*frame.Frame, error)
	Save(name string, f *frame.Frame) error
	Names() ([]string, error)
}

func datasetsBuilder(api DatasetAPI) moduleBuilder {
	return func(in *interp, p pos) (*moduleValue, error) {
		attrs := map[string]Value{}
		attrs["load"] = modFn("datasets", "load", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
			if err := noKwargs(p, "datasets.load", kwargs); err != nil {
				return nil, err
			}
			if err := wantExact(p, "datasets.load", args, 1); err != nil {
				return nil, err
			}
			name, ok := args[0].(strValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("dataset name must be a string, not '%s'", args[0].typeName()))
			}
			f, err := api.Load(string(name))
			if err != nil {
				return nil, runtimeErr(p, err.Error())
			}
			return &frameValue{f: f}, nil
		})
		attrs["save"] = modFn("datasets", "save", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
			if err := noKwargs(p, "datasets.save", kwargs); err != nil {
				return nil, err
			}
			if err := wantExact(p, "datasets.save", args, 2); err != nil {
				return nil, err
			}
			name, ok := args[0].(strValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("dataset name must be a string, not '%s'", args[0].typeName()))
			}
			fv, ok := args[1].(*frameValue)
			if !ok {
				return nil, runtimeErr(p, fmt.Sprintf("datasets.save() expects a frame, not '%s'", args[1].typeName()))
			}
			if err := api.Save(string(name), fv.f); err != nil {
				return nil, runtimeErr(p, err.Error())
			}
			return valNone, nil
		})
		attrs["names"] = modFn("datasets", "names", func(in *interp, p pos, args []Value, kwargs map[string]Value) (Value, error) {
			if err := noKwargs(p, "datasets.names", kwargs); err != nil {
				return nil, err
			}
			if err := wantExact(p, "datasets.names", args, 0); err != nil {
				return nil, err
			}
			names, err := api.Names()
			if err != nil {
				return nil, runtimeErr(p, err.Error())
			}
			out := &listValue{items: make([]Value, len(names))}
			for i, n := range names {
				out.items[i] = strValue(n)
			}
			return out, nil
		})
		return module("datasets", attrs), nil
	}
}
