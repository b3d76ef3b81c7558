package vm

import (
	"fmt"

	"swiftlet-vm/internal/chunk"
	"swiftlet-vm/internal/native"
	"swiftlet-vm/internal/value"
)

// DefaultGasLimit bounds the number of dispatched instructions per call.
const DefaultGasLimit = 100_000

// CallFrame is the per-call record. Locals live inside the operand stack
// starting at Base; Return truncates back to Base.
type CallFrame struct {
	Fn   value.FunctionRef
	IP   int
	Base int
}

// VM executes one program. It is single-use per Call: the operand and
// frame stacks are reset on entry and an error poisons nothing beyond
// the failed call.
type VM struct {
	program  *chunk.Program
	natives  *native.Registry
	GasLimit uint64

	stack  []value.Value
	frames []CallFrame
	steps  uint64
}

func New(program *chunk.Program, natives *native.Registry) *VM {
	if natives == nil {
		natives = native.NewRegistry()
	}
	return &VM{
		program:  program,
		natives:  natives,
		GasLimit: DefaultGasLimit,
	}
}

// Steps reports how many instructions the last Call dispatched.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

// Call resolves an entry function by name, binds the arguments and runs
// the dispatch loop to completion.
func (vm *VM) Call(name string, args []value.Value) (value.Value, error) {
	fn, ok := vm.program.FunctionByName(name)
	if !ok {
		return value.NewNull(), &RuntimeError{
			Kind:    UnknownFunction,
			Message: fmt.Sprintf("unknown function '%s'", name),
		}
	}
	if len(args) != fn.Arity {
		return value.NewNull(), &RuntimeError{
			Kind:    ArityMismatch,
			Message: fmt.Sprintf("function '%s' expects %d argument(s), got %d", name, fn.Arity, len(args)),
		}
	}

	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.steps = 0

	vm.stack = append(vm.stack, args...)
	vm.pushFrame(fn)

	return vm.run()
}

// pushFrame enters a function whose arguments are already the top of the
// stack, then extends the local window to the function's slot count.
func (vm *VM) pushFrame(fn value.FunctionRef) {
	base := len(vm.stack) - fn.Arity
	vm.frames = append(vm.frames, CallFrame{Fn: fn, Base: base})
	for len(vm.stack) < base+fn.Locals {
		vm.stack = append(vm.stack, value.NewNull())
	}
}

func (vm *VM) run() (value.Value, error) {
	for len(vm.frames) > 0 {
		frame := &vm.frames[len(vm.frames)-1]
		c := vm.program.Chunks[frame.Fn.ChunkIndex]

		vm.steps++
		if vm.steps > vm.GasLimit {
			return value.NewNull(), vm.fault(GasExceeded, c, frame.IP,
				"gas limit of %d steps exceeded", vm.GasLimit)
		}

		if frame.IP >= len(c.Code) {
			return value.NewNull(), vm.fault(IpOutOfBounds, c, frame.IP,
				"instruction pointer %d out of bounds in '%s'", frame.IP, frame.Fn.Name)
		}

		in := c.Code[frame.IP]
		frame.IP++

		switch in.Op {
		case chunk.OP_PUSH_CONST:
			vm.push(c.Constants[in.A].ToValue())

		case chunk.OP_LOAD_LOCAL:
			vm.push(vm.stack[frame.Base+in.A])

		case chunk.OP_STORE_LOCAL:
			v := vm.pop()
			for len(vm.stack) < frame.Base+in.A+1 {
				vm.stack = append(vm.stack, value.NewNull())
			}
			vm.stack[frame.Base+in.A] = v

		case chunk.OP_POP:
			vm.pop()

		case chunk.OP_ADD:
			b := vm.pop()
			a := vm.pop()
			r, ok := addValues(a, b)
			if !ok {
				return value.NewNull(), vm.fault(InvalidAdd, c, frame.IP-1,
					"invalid operands for '+': %s and %s", a.Type, b.Type)
			}
			vm.push(r)

		case chunk.OP_EQ:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Equal(a, b)))

		case chunk.OP_JUMP:
			frame.IP += in.A

		case chunk.OP_JUMP_IF_FALSE:
			cond := vm.pop()
			if value.IsFalsy(cond) {
				frame.IP += in.A
			}

		case chunk.OP_CALL_NATIVE:
			k := c.Constants[in.A]
			if k.Kind != chunk.CONST_NAME {
				return value.NewNull(), vm.fault(ConstantNotAName, c, frame.IP-1,
					"native call through non-name constant %s", k)
			}
			args := make([]value.Value, in.Argc)
			copy(args, vm.stack[len(vm.stack)-in.Argc:])
			vm.stack = vm.stack[:len(vm.stack)-in.Argc]

			fn, ok := vm.natives.Resolve(k.Str)
			if !ok {
				return value.NewNull(), vm.fault(UnknownNative, c, frame.IP-1,
					"unknown native '%s'", k.Str)
			}
			if fn.Arity != in.Argc {
				return value.NewNull(), vm.fault(ArityMismatch, c, frame.IP-1,
					"native '%s' expects %d argument(s), got %d", k.Str, fn.Arity, in.Argc)
			}
			result, err := fn.Invoke(args)
			if err != nil {
				return value.NewNull(), vm.fault(NativeFailure, c, frame.IP-1,
					"native '%s' failed: %s", k.Str, err)
			}
			vm.push(result)

		case chunk.OP_CALL_FUNC:
			fn := vm.program.Functions[in.A]
			if fn.Arity != in.Argc {
				return value.NewNull(), vm.fault(ArityMismatch, c, frame.IP-1,
					"function '%s' expects %d argument(s), got %d", fn.Name, fn.Arity, in.Argc)
			}
			vm.pushFrame(fn)

		case chunk.OP_RETURN:
			r := value.NewNull()
			if len(vm.stack) > 0 {
				r = vm.pop()
			}
			base := frame.Base
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.stack = vm.stack[:base]
			if len(vm.frames) == 0 {
				return r, nil
			}
			vm.push(r)

		case chunk.OP_NOP:
			// no effect
		}
	}

	return value.NewNull(), nil
}

// addValues implements the '+' table: numeric addition with Int→Double
// promotion, and string concatenation that stringifies the non-string
// side when at least one side is a string.
func addValues(a, b value.Value) (value.Value, bool) {
	if a.Type == value.VAL_STRING || b.Type == value.VAL_STRING {
		return value.NewString(a.String() + b.String()), true
	}
	switch {
	case a.Type == value.VAL_INT && b.Type == value.VAL_INT:
		return value.NewInt(a.AsInt + b.AsInt), true
	case a.Type == value.VAL_INT && b.Type == value.VAL_DOUBLE:
		return value.NewDouble(float64(a.AsInt) + b.AsDouble), true
	case a.Type == value.VAL_DOUBLE && b.Type == value.VAL_INT:
		return value.NewDouble(a.AsDouble + float64(b.AsInt)), true
	case a.Type == value.VAL_DOUBLE && b.Type == value.VAL_DOUBLE:
		return value.NewDouble(a.AsDouble + b.AsDouble), true
	}
	return value.Value{}, false
}

// fault builds a runtime error annotated with the source line of the
// instruction at ip.
func (vm *VM) fault(kind ErrorKind, c *chunk.Chunk, ip int, format string, args ...interface{}) error {
	return &RuntimeError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    c.Line(ip),
	}
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}
