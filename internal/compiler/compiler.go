package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"swiftlet-vm/internal/ast"
	"swiftlet-vm/internal/chunk"
	"swiftlet-vm/internal/lexer"
	"swiftlet-vm/internal/parser"
	"swiftlet-vm/internal/value"
)

// CompileError is the error type surfaced for any source-to-bytecode
// failure; see the parser package for its kinds.
type CompileError = parser.CompileError

var log = commonlog.GetLogger("swiftlet.compiler")

type Compiler struct {
	// Strict rejects top-level statements outside any func instead of
	// dropping them with a warning.
	Strict bool
}

func New() *Compiler {
	return &Compiler{}
}

// Compile turns source text into an immutable bytecode program. The first
// failure aborts compilation.
func (c *Compiler) Compile(source string) (*chunk.Program, error) {
	l := lexer.New(source)
	p := parser.New(l)
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}

	if len(prog.SkippedLines) > 0 {
		if c.Strict {
			return nil, &CompileError{
				Kind:    parser.UnsupportedConstruct,
				Message: "Unsupported top-level statement outside any func",
				Line:    prog.SkippedLines[0],
			}
		}
		log.Warningf("dropped %d top-level statement(s) outside any func (first at line %d)",
			len(prog.SkippedLines), prog.SkippedLines[0])
	}

	return emitProgram(prog)
}

func emitProgram(prog *ast.Program) (*chunk.Program, error) {
	program := &chunk.Program{
		Chunks:    []*chunk.Chunk{},
		Functions: []value.FunctionRef{},
	}

	// Register every function index before emitting any body so calls can
	// refer to functions declared later in the source.
	indexes := make(map[string]int)
	for i, f := range prog.Funcs {
		if _, dup := indexes[f.Name]; dup {
			return nil, &CompileError{
				Kind:    parser.UnsupportedConstruct,
				Message: fmt.Sprintf("duplicate function '%s'", f.Name),
				Line:    f.Token.Line,
			}
		}
		indexes[f.Name] = i
		program.Functions = append(program.Functions, value.FunctionRef{
			Name:       f.Name,
			Arity:      len(f.Params),
			ChunkIndex: i,
		})
	}

	for i, f := range prog.Funcs {
		fc := &funcCompiler{
			chunk: chunk.New(),
			funcs: indexes,
			slots: make(map[string]int),
			line:  f.Token.Line,
		}
		fc.compileFunc(f)
		program.Chunks = append(program.Chunks, fc.chunk)
		program.Functions[i].Locals = fc.nextSlot
	}

	return program, nil
}

type funcCompiler struct {
	chunk    *chunk.Chunk
	funcs    map[string]int
	slots    map[string]int
	nextSlot int
	line     int // source line of the statement being emitted
}

func (fc *funcCompiler) compileFunc(f *ast.FuncDecl) {
	for _, p := range f.Params {
		fc.slotFor(p)
	}
	for _, stmt := range f.Body {
		fc.emitStmt(stmt)
	}
	// Well-defined fall-through: every chunk ends by returning null.
	fc.emitConstant(chunk.NullConst())
	fc.emit(chunk.Instruction{Op: chunk.OP_RETURN})
}

// slotFor returns the local slot bound to a name, allocating the next
// free slot on first use. An identifier read before any store therefore
// gets a fresh slot the VM fills with null, which keeps parameters-only
// code working but also silently absorbs typos.
func (fc *funcCompiler) slotFor(name string) int {
	if slot, ok := fc.slots[name]; ok {
		return slot
	}
	slot := fc.nextSlot
	fc.slots[name] = slot
	fc.nextSlot++
	return slot
}

func (fc *funcCompiler) emit(in chunk.Instruction) int {
	return fc.chunk.Write(in, fc.line)
}

func (fc *funcCompiler) emitConstant(k chunk.Constant) {
	ix := fc.chunk.AddConstant(k)
	fc.emit(chunk.Instruction{Op: chunk.OP_PUSH_CONST, A: ix})
}

// patchJump rewrites a placeholder jump so it lands on the current end of
// code. Offsets count from the instruction after the jump.
func (fc *funcCompiler) patchJump(at int) {
	fc.chunk.Code[at].A = len(fc.chunk.Code) - at - 1
}

func (fc *funcCompiler) emitStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		fc.line = s.Token.Line
		fc.emitExpr(s.Value)
		fc.emit(chunk.Instruction{Op: chunk.OP_STORE_LOCAL, A: fc.slotFor(s.Name)})

	case *ast.ExpressionStmt:
		fc.line = s.Token.Line
		fc.emitExpr(s.Expression)
		fc.emit(chunk.Instruction{Op: chunk.OP_POP})

	case *ast.ReturnStmt:
		fc.line = s.Token.Line
		if s.Value != nil {
			fc.emitExpr(s.Value)
		} else {
			fc.emitConstant(chunk.NullConst())
		}
		fc.emit(chunk.Instruction{Op: chunk.OP_RETURN})

	case *ast.IfStmt:
		fc.line = s.Token.Line
		fc.emitExpr(s.Condition)
		jumpToElse := fc.emit(chunk.Instruction{Op: chunk.OP_JUMP_IF_FALSE})
		for _, inner := range s.Then {
			fc.emitStmt(inner)
		}
		jumpToEnd := fc.emit(chunk.Instruction{Op: chunk.OP_JUMP})
		fc.patchJump(jumpToElse)
		for _, inner := range s.Else {
			fc.emitStmt(inner)
		}
		fc.patchJump(jumpToEnd)
	}
}

func (fc *funcCompiler) emitExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.StringLit:
		fc.emitConstant(chunk.StringConst(e.Value))
	case *ast.IntLit:
		fc.emitConstant(chunk.IntConst(e.Value))
	case *ast.BoolLit:
		fc.emitConstant(chunk.BoolConst(e.Value))
	case *ast.Ident:
		fc.emit(chunk.Instruction{Op: chunk.OP_LOAD_LOCAL, A: fc.slotFor(e.Name)})
	case *ast.CallExpr:
		for _, arg := range e.Args {
			fc.emitExpr(arg)
		}
		if fi, ok := fc.funcs[e.Name]; ok {
			fc.emit(chunk.Instruction{Op: chunk.OP_CALL_FUNC, A: fi, Argc: len(e.Args)})
		} else {
			nameIx := fc.chunk.AddConstant(chunk.NameConst(e.Name))
			fc.emit(chunk.Instruction{Op: chunk.OP_CALL_NATIVE, A: nameIx, Argc: len(e.Args)})
		}
	case *ast.BinaryExpr:
		fc.emitExpr(e.Left)
		fc.emitExpr(e.Right)
		switch e.Op {
		case ast.OpAdd:
			fc.emit(chunk.Instruction{Op: chunk.OP_ADD})
		case ast.OpEq:
			fc.emit(chunk.Instruction{Op: chunk.OP_EQ})
		}
	}
}
