// Package transform compiles scripted attribute transforms. Scripts are
// Starlark programs defining a function named transform that receives the
// value and returns the converted one.
package transform

import (
	"context"
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/ahrav/provisioner/internal/domain/mapping"
)

// FuncName is the function every script must define.
const FuncName = "transform"

// DefaultMaxSteps bounds a single transform call.
const DefaultMaxSteps = 100_000

// ErrInvalidScript is returned when a script does not compile or does not
// define the transform function.
var ErrInvalidScript = errors.New("invalid transform script")

var _ mapping.Compiler = (*Compiler)(nil)

// Compiler compiles Starlark transform scripts.
type Compiler struct {
	maxSteps uint64
}

// NewCompiler creates a compiler whose transforms abort after maxSteps
// Starlark execution steps. Zero selects DefaultMaxSteps.
func NewCompiler(maxSteps uint64) *Compiler {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Compiler{maxSteps: maxSteps}
}

// Compile builds a transform from script. An empty direction is the
// identity. The script globals are frozen, so calls cannot leak state into
// each other.
func (c *Compiler) Compile(name string, script mapping.Script) (mapping.Transform, error) {
	to, err := c.load(name+".to_connector", script.ToConnector)
	if err != nil {
		return nil, err
	}
	from, err := c.load(name+".from_connector", script.FromConnector)
	if err != nil {
		return nil, err
	}
	return &scripted{name: name, to: to, from: from, maxSteps: c.maxSteps}, nil
}

func (c *Compiler) load(name, src string) (*starlark.Function, error) {
	if src == "" {
		return nil, nil
	}

	thread := &starlark.Thread{Name: name, Print: func(*starlark.Thread, string) {}}
	thread.SetMaxExecutionSteps(c.maxSteps)

	predeclared := starlark.StringDict{"struct": starlarkstruct.Default}
	globals, err := starlark.ExecFile(thread, name+".star", src, predeclared)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidScript, name, err)
	}
	globals.Freeze()

	fn, ok := globals[FuncName].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%w %s: function %s is not defined", ErrInvalidScript, name, FuncName)
	}
	if fn.NumParams() != 1 {
		return nil, fmt.Errorf("%w %s: %s must take exactly one parameter", ErrInvalidScript, name, FuncName)
	}
	return fn, nil
}

// scripted is a compiled pair of transform functions.
type scripted struct {
	name     string
	to, from *starlark.Function
	maxSteps uint64
}

func (s *scripted) ToConnector(ctx context.Context, value any) (any, error) {
	return s.call(ctx, s.to, value)
}

func (s *scripted) FromConnector(ctx context.Context, value any) (any, error) {
	return s.call(ctx, s.from, value)
}

func (s *scripted) call(ctx context.Context, fn *starlark.Function, value any) (any, error) {
	if fn == nil {
		return value, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := toStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("transform %s: failed to convert input: %w", s.name, err)
	}

	thread := &starlark.Thread{Name: s.name, Print: func(*starlark.Thread, string) {}}
	thread.SetMaxExecutionSteps(s.maxSteps)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	out, err := starlark.Call(thread, fn, starlark.Tuple{in}, nil)
	if err != nil {
		return nil, fmt.Errorf("transform %s failed: %w", s.name, err)
	}

	res, err := fromStarlark(out)
	if err != nil {
		return nil, fmt.Errorf("transform %s: failed to convert result: %w", s.name, err)
	}
	return res, nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val, val.Len())
	case starlark.Tuple:
		return fromIterable(val, val.Len())
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			gv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromIterable(it starlark.Indexable, n int) ([]any, error) {
	out := make([]any, n)
	for i := range n {
		gv, err := fromStarlark(it.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = gv
	}
	return out, nil
}
