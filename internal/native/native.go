package native

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"swiftlet-vm/internal/value"
)

// Func is a host-provided callable the script can invoke by name. The VM
// checks Arity before forwarding; Fn may fail, which surfaces to the
// script's caller as a runtime error.
type Func struct {
	Name  string
	Arity int
	Fn    func(args []value.Value) (value.Value, error)
}

func (f Func) Invoke(args []value.Value) (value.Value, error) {
	return f.Fn(args)
}

// Registry maps native names to callables. Registration happens before
// any call; mutating a registry while a VM is running on it is not
// supported.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a callable, replacing any previous one with the same name.
func (r *Registry) Register(f Func) {
	r.funcs[f.Name] = f
}

func (r *Registry) Resolve(name string) (Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a registry with the small default host library.
// Embedders extend it or start from NewRegistry for a sealed sandbox.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(Func{Name: "log", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		fmt.Println(args[0].String())
		return value.NewNull(), nil
	}})
	r.Register(Func{Name: "to_str", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		return value.NewString(args[0].String()), nil
	}})
	r.Register(Func{Name: "len", Arity: 1, Fn: func(args []value.Value) (value.Value, error) {
		if args[0].Type != value.VAL_STRING {
			return value.Value{}, fmt.Errorf("len expects a string, got %s", args[0].Type)
		}
		return value.NewInt(int64(len(args[0].Str))), nil
	}})
	r.Register(Func{Name: "uuid", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
		return value.NewString(uuid.NewString()), nil
	}})
	r.Register(Func{Name: "time_now", Arity: 0, Fn: func(args []value.Value) (value.Value, error) {
		return value.NewInt(time.Now().Unix()), nil
	}})
	return r
}
