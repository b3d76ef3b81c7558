package compiler

import (
	"errors"
	"testing"

	"swiftlet-vm/internal/chunk"
	"swiftlet-vm/internal/parser"
)

func compile(t *testing.T, input string) *chunk.Program {
	t.Helper()
	prog, err := New().Compile(input)
	if err != nil {
		t.Fatalf("compile error for %q: %s", input, err)
	}
	return prog
}

func TestEmptyBodyEmitsNullReturn(t *testing.T) {
	prog := compile(t, `func main() {}`)

	if len(prog.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(prog.Chunks))
	}
	c := prog.Chunks[0]
	if len(c.Code) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(c.Code))
	}
	if c.Code[0].Op != chunk.OP_PUSH_CONST {
		t.Errorf("code[0] = %s, want OP_PUSH_CONST", c.Code[0].Op)
	}
	if c.Constants[c.Code[0].A].Kind != chunk.CONST_NULL {
		t.Errorf("fall-through constant is %s, want null", c.Constants[c.Code[0].A])
	}
	if c.Code[1].Op != chunk.OP_RETURN {
		t.Errorf("code[1] = %s, want OP_RETURN", c.Code[1].Op)
	}
}

func TestLineTableMatchesCode(t *testing.T) {
	prog := compile(t, `func main() {
	let a = 1
	let b = 2
	log("sum=" + a + b)
}

func helper(x) {
	return x
}`)

	for i, c := range prog.Chunks {
		if len(c.Code) != len(c.Lines) {
			t.Errorf("chunk %d: |code|=%d but |lines|=%d", i, len(c.Code), len(c.Lines))
		}
	}

	// Instructions of the let on line 2 carry line 2.
	c := prog.Chunks[0]
	if c.Lines[0] != 2 || c.Lines[1] != 2 {
		t.Errorf("let emission lines = %v, want [2 2 ...]", c.Lines[:2])
	}
}

func TestParamsGetLowSlots(t *testing.T) {
	prog := compile(t, `func f(a, b) {
	let c = a
	return b
}`)

	c := prog.Chunks[0]
	// let c = a  ->  LOAD_LOCAL 0; STORE_LOCAL 2
	if c.Code[0].Op != chunk.OP_LOAD_LOCAL || c.Code[0].A != 0 {
		t.Errorf("code[0] = %s %d, want OP_LOAD_LOCAL 0", c.Code[0].Op, c.Code[0].A)
	}
	if c.Code[1].Op != chunk.OP_STORE_LOCAL || c.Code[1].A != 2 {
		t.Errorf("code[1] = %s %d, want OP_STORE_LOCAL 2", c.Code[1].Op, c.Code[1].A)
	}
	// return b  ->  LOAD_LOCAL 1; RETURN
	if c.Code[2].Op != chunk.OP_LOAD_LOCAL || c.Code[2].A != 1 {
		t.Errorf("code[2] = %s %d, want OP_LOAD_LOCAL 1", c.Code[2].Op, c.Code[2].A)
	}
	if prog.Functions[0].Locals != 3 {
		t.Errorf("locals = %d, want 3", prog.Functions[0].Locals)
	}
}

func TestIfEmissionAndJumpPatching(t *testing.T) {
	prog := compile(t, `func main() { if true { log("a") } else { log("b") } }`)

	c := prog.Chunks[0]
	// 0 PUSH_CONST true
	// 1 JUMP_IF_FALSE +4   -> 6
	// 2 PUSH_CONST "a"
	// 3 CALL_NATIVE log
	// 4 POP
	// 5 JUMP +3            -> 9
	// 6 PUSH_CONST "b"
	// 7 CALL_NATIVE log
	// 8 POP
	// 9 PUSH_CONST null
	// 10 RETURN
	if c.Code[1].Op != chunk.OP_JUMP_IF_FALSE {
		t.Fatalf("code[1] = %s, want OP_JUMP_IF_FALSE", c.Code[1].Op)
	}
	if c.Code[1].A != 4 {
		t.Errorf("jump-if-false offset = %d, want 4 (counted from the next instruction)", c.Code[1].A)
	}
	if c.Code[5].Op != chunk.OP_JUMP {
		t.Fatalf("code[5] = %s, want OP_JUMP", c.Code[5].Op)
	}
	if c.Code[5].A != 3 {
		t.Errorf("jump offset = %d, want 3 (counted from the next instruction)", c.Code[5].A)
	}

	// Every jump target lands inside [0, |code|].
	for i, in := range c.Code {
		if in.Op == chunk.OP_JUMP || in.Op == chunk.OP_JUMP_IF_FALSE {
			target := i + 1 + in.A
			if target < 0 || target > len(c.Code) {
				t.Errorf("jump at %d targets %d, outside [0, %d]", i, target, len(c.Code))
			}
		}
	}
}

func TestIfWithoutElseJumpsToEnd(t *testing.T) {
	prog := compile(t, `func main() { if false { log("x") } }`)

	c := prog.Chunks[0]
	// 0 PUSH_CONST false
	// 1 JUMP_IF_FALSE +4  -> 6
	// 2 PUSH_CONST "x"
	// 3 CALL_NATIVE log
	// 4 POP
	// 5 JUMP +0           -> 6
	// 6 PUSH_CONST null
	// 7 RETURN
	if c.Code[1].A != 4 {
		t.Errorf("jump-if-false offset = %d, want 4", c.Code[1].A)
	}
	if c.Code[5].Op != chunk.OP_JUMP || c.Code[5].A != 0 {
		t.Errorf("code[5] = %s %d, want OP_JUMP 0", c.Code[5].Op, c.Code[5].A)
	}
}

func TestForwardFunctionReference(t *testing.T) {
	prog := compile(t, `func main() { return helper(1) }
func helper(x) { return x }`)

	c := prog.Chunks[0]
	var call *chunk.Instruction
	for i := range c.Code {
		if c.Code[i].Op == chunk.OP_CALL_FUNC {
			call = &c.Code[i]
		}
	}
	if call == nil {
		t.Fatal("expected a OP_CALL_FUNC for the forward reference")
	}
	if call.A != 1 || call.Argc != 1 {
		t.Errorf("call = func %d argc %d, want func 1 argc 1", call.A, call.Argc)
	}
}

func TestCallNativeUsesNameConstant(t *testing.T) {
	prog := compile(t, `func main() { log("hi") }`)

	c := prog.Chunks[0]
	var call *chunk.Instruction
	for i := range c.Code {
		if c.Code[i].Op == chunk.OP_CALL_NATIVE {
			call = &c.Code[i]
		}
	}
	if call == nil {
		t.Fatal("expected OP_CALL_NATIVE")
	}
	k := c.Constants[call.A]
	if k.Kind != chunk.CONST_NAME {
		t.Errorf("call constant kind = %s, want name", k.Kind)
	}
	if k.Str != "log" {
		t.Errorf("call constant = %q, want log", k.Str)
	}
}

func TestConstantIndexesAreValid(t *testing.T) {
	prog := compile(t, `func main() {
	let a = 1
	let b = "two"
	if a == 1 { log(b) } else { log("other") }
	return helper()
}
func helper() { return true }`)

	for ci, c := range prog.Chunks {
		for i, in := range c.Code {
			switch in.Op {
			case chunk.OP_PUSH_CONST, chunk.OP_CALL_NATIVE:
				if in.A < 0 || in.A >= len(c.Constants) {
					t.Errorf("chunk %d code[%d]: constant index %d out of range", ci, i, in.A)
				}
			case chunk.OP_CALL_FUNC:
				if in.A < 0 || in.A >= len(prog.Functions) {
					t.Errorf("chunk %d code[%d]: function index %d out of range", ci, i, in.A)
				}
			}
		}
		if len(c.Code) == 0 || c.Code[len(c.Code)-1].Op != chunk.OP_RETURN {
			t.Errorf("chunk %d does not end with OP_RETURN", ci)
		}
	}
}

func TestDuplicateFunction(t *testing.T) {
	_, err := New().Compile("func f() {}\nfunc f() {}")
	if err == nil {
		t.Fatal("expected duplicate function error")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if ce.Line != 2 {
		t.Errorf("line = %d, want 2", ce.Line)
	}
}

func TestStrictModeRejectsTopLevelStatements(t *testing.T) {
	source := "let x = 1\nfunc main() {}"

	if _, err := New().Compile(source); err != nil {
		t.Fatalf("non-strict compile should drop the statement, got %s", err)
	}

	c := New()
	c.Strict = true
	_, err := c.Compile(source)
	if err == nil {
		t.Fatal("strict compile should reject the top-level statement")
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	if ce.Kind != parser.UnsupportedConstruct {
		t.Errorf("kind = %s, want UnsupportedConstruct", ce.Kind)
	}
	if ce.Line != 1 {
		t.Errorf("line = %d, want 1", ce.Line)
	}
}
