package parser

import (
	"errors"
	"testing"

	"swiftlet-vm/internal/ast"
	"swiftlet-vm/internal/lexer"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	p := New(lexer.New(input))
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("parse error for %q: %s", input, err)
	}
	return prog
}

func parseErr(t *testing.T, input string) *CompileError {
	t.Helper()
	p := New(lexer.New(input))
	_, err := p.ParseProgram()
	if err == nil {
		t.Fatalf("expected parse error for %q", input)
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	return ce
}

func TestFunctionDeclaration(t *testing.T) {
	prog := parse(t, `func add(a, b) { return a + b }`)

	if len(prog.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Funcs))
	}
	f := prog.Funcs[0]
	if f.Name != "add" {
		t.Errorf("name = %q, want add", f.Name)
	}
	if len(f.Params) != 2 || f.Params[0] != "a" || f.Params[1] != "b" {
		t.Errorf("params = %v, want [a b]", f.Params)
	}
	if len(f.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(f.Body))
	}
	ret, ok := f.Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected ReturnStmt, got %T", f.Body[0])
	}
	bin, ok := ret.Value.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr, got %T", ret.Value)
	}
	if bin.Op != ast.OpAdd {
		t.Errorf("op = %s, want +", bin.Op)
	}
}

func TestParameterLabelsAndTypes(t *testing.T) {
	tests := []struct {
		input  string
		params []string
	}{
		{`func f() {}`, []string{}},
		{`func f(x) {}`, []string{"x"}},
		{`func f(_ name) {}`, []string{"name"}},
		{`func f(_ name: String) {}`, []string{"name"}},
		{`func f(id: String, text: String) {}`, []string{"id", "text"}},
		{`func f(with label: Int, y) {}`, []string{"label", "y"}},
	}

	for _, tt := range tests {
		prog := parse(t, tt.input)
		got := prog.Funcs[0].Params
		if len(got) != len(tt.params) {
			t.Errorf("%q: params = %v, want %v", tt.input, got, tt.params)
			continue
		}
		for i := range got {
			if got[i] != tt.params[i] {
				t.Errorf("%q: params = %v, want %v", tt.input, got, tt.params)
				break
			}
		}
	}
}

func TestCallArgumentLabelsStripped(t *testing.T) {
	prog := parse(t, `func main() { setText(id: "t", text: "ok") }`)

	stmt := prog.Funcs[0].Body[0].(*ast.ExpressionStmt)
	call, ok := stmt.Expression.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr, got %T", stmt.Expression)
	}
	if call.Name != "setText" {
		t.Errorf("callee = %q, want setText", call.Name)
	}
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(call.Args))
	}
	for i, want := range []string{"t", "ok"} {
		lit, ok := call.Args[i].(*ast.StringLit)
		if !ok {
			t.Fatalf("arg %d: expected StringLit, got %T", i, call.Args[i])
		}
		if lit.Value != want {
			t.Errorf("arg %d = %q, want %q", i, lit.Value, want)
		}
	}
}

func TestAddBindsTighterThanEq(t *testing.T) {
	prog := parse(t, `func main() { let ok = "a" + "b" == "ab" }`)

	let := prog.Funcs[0].Body[0].(*ast.LetStmt)
	got := let.Value.String()
	want := `(("a" + "b") == "ab")`
	if got != want {
		t.Errorf("parsed %s, want %s", got, want)
	}
}

func TestAddIsLeftAssociative(t *testing.T) {
	prog := parse(t, `func main() { let s = "sum=" + a + b }`)

	let := prog.Funcs[0].Body[0].(*ast.LetStmt)
	got := let.Value.String()
	want := `(("sum=" + a) + b)`
	if got != want {
		t.Errorf("parsed %s, want %s", got, want)
	}
}

func TestElseIfDesugarsToNestedIf(t *testing.T) {
	prog := parse(t, `func main() {
	if a == 1 {
		log("one")
	} else if a == 2 {
		log("two")
	} else {
		log("many")
	}
}`)

	outer := prog.Funcs[0].Body[0].(*ast.IfStmt)
	if len(outer.Else) != 1 {
		t.Fatalf("expected single else statement, got %d", len(outer.Else))
	}
	nested, ok := outer.Else[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected nested IfStmt, got %T", outer.Else[0])
	}
	if nested.Else == nil {
		t.Error("nested if should carry the final else arm")
	}
}

func TestBareReturn(t *testing.T) {
	prog := parse(t, "func main() {\n\treturn\n\tlog(\"unreached\")\n}")

	ret, ok := prog.Funcs[0].Body[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected ReturnStmt, got %T", prog.Funcs[0].Body[0])
	}
	if ret.Value != nil {
		t.Errorf("bare return should have nil value, got %s", ret.Value.String())
	}
	if len(prog.Funcs[0].Body) != 2 {
		t.Errorf("expected 2 statements, got %d", len(prog.Funcs[0].Body))
	}
}

func TestTopLevelStatementsAreSkipped(t *testing.T) {
	prog := parse(t, `import Foundation

let dropped = 1

func main() { return 2 }`)

	if len(prog.Funcs) != 1 || prog.Funcs[0].Name != "main" {
		t.Fatalf("expected only main, got %v", prog.Funcs)
	}
	if len(prog.SkippedLines) == 0 {
		t.Fatal("expected skipped top-level lines to be recorded")
	}
	if prog.SkippedLines[0] != 1 {
		t.Errorf("first skipped line = %d, want 1", prog.SkippedLines[0])
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  ErrorKind
		line  int
	}{
		{"func main() { let = 1 }", InvalidLet, 1},
		{"func main() { let x }", InvalidLet, 1},
		{"func main() {\n\tlet x = 1 - 2\n}", UnsupportedOperator, 2},
		{"func main() { x * 2 }", UnsupportedOperator, 1},
		{"func main() { a && b }", UnsupportedOperator, 1},
		{"func main() { x = 1 }", UnsupportedOperator, 1},
		{"func main() { if x return }", MalformedIf, 1},
		{"func main() {\n\tif a { } else log(\"x\")\n}", MalformedIf, 2},
		{"func main() { while true { } }", UnsupportedConstruct, 1},
		{"func main() { for x { } }", UnsupportedConstruct, 1},
		{"func main() { var x = 1 }", UnsupportedConstruct, 1},
		{"func main() { let f = 1.5 }", UnsupportedConstruct, 1},
	}

	for _, tt := range tests {
		ce := parseErr(t, tt.input)
		if ce.Kind != tt.kind {
			t.Errorf("%q: kind = %s, want %s (%s)", tt.input, ce.Kind, tt.kind, ce.Message)
		}
		if ce.Line != tt.line {
			t.Errorf("%q: line = %d, want %d", tt.input, ce.Line, tt.line)
		}
	}
}

func TestFirstErrorAborts(t *testing.T) {
	ce := parseErr(t, "func main() {\n\tlet x = 1.5\n\tlet y = 2.5\n}")
	if ce.Line != 2 {
		t.Errorf("expected first failure (line 2), got line %d", ce.Line)
	}
}
