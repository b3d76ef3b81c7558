// Package runtime is the embedding surface: it holds the native registry
// and runs sources, bundles and line fragments through a fresh VM per
// call.
package runtime

import (
	"strings"

	"github.com/tliron/commonlog"

	"swiftlet-vm/internal/bundle"
	"swiftlet-vm/internal/chunk"
	"swiftlet-vm/internal/compiler"
	"swiftlet-vm/internal/native"
	"swiftlet-vm/internal/value"
	"swiftlet-vm/internal/vm"
)

const DefaultEntry = "main"

var log = commonlog.GetLogger("swiftlet.runtime")

type Runtime struct {
	natives *native.Registry

	// GasLimit overrides the VM default when non-zero.
	GasLimit uint64
	// Strict rejects top-level statements outside any func.
	Strict bool

	lastSteps uint64
}

// New builds a runtime around a registry; nil means the builtin library.
func New(natives *native.Registry) *Runtime {
	if natives == nil {
		natives = native.Builtins()
	}
	return &Runtime{natives: natives}
}

func (r *Runtime) Natives() *native.Registry {
	return r.natives
}

// Steps reports the instruction count of the most recent call.
func (r *Runtime) Steps() uint64 {
	return r.lastSteps
}

// Compile compiles source without running it.
func (r *Runtime) Compile(source string) (*chunk.Program, error) {
	c := compiler.New()
	c.Strict = r.Strict
	return c.Compile(source)
}

func (r *Runtime) RunSource(source string) (value.Value, error) {
	return r.RunSourceEntry(source, DefaultEntry)
}

func (r *Runtime) RunSourceEntry(source, entry string) (value.Value, error) {
	prog, err := r.Compile(source)
	if err != nil {
		return value.NewNull(), err
	}
	return r.RunProgram(prog, entry)
}

func (r *Runtime) RunBundle(data, key []byte) (value.Value, error) {
	return r.RunBundleEntry(data, key, DefaultEntry)
}

func (r *Runtime) RunBundleEntry(data, key []byte, entry string) (value.Value, error) {
	prog, err := bundle.Decode(data, key)
	if err != nil {
		return value.NewNull(), err
	}
	return r.RunProgram(prog, entry)
}

// RunLines wraps free statements in a synthetic main and runs them.
func (r *Runtime) RunLines(lines []string) (value.Value, error) {
	var sb strings.Builder
	sb.WriteString("func main() {\n")
	for _, line := range lines {
		sb.WriteString("\t")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return r.RunSource(sb.String())
}

// RunProgram executes a compiled program on a fresh VM.
func (r *Runtime) RunProgram(prog *chunk.Program, entry string) (value.Value, error) {
	m := vm.New(prog, r.natives)
	if r.GasLimit > 0 {
		m.GasLimit = r.GasLimit
	}
	log.Debugf("calling entry '%s'", entry)
	result, err := m.Call(entry, nil)
	r.lastSteps = m.Steps()
	return result, err
}
