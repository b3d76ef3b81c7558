package parser

import (
	"fmt"
	"strconv"

	"swiftlet-vm/internal/ast"
	"swiftlet-vm/internal/lexer"
	"swiftlet-vm/internal/token"
)

const (
	LOWEST = iota
	EQUALS // ==
	SUM    // +
	CALL   // name(...)
)

var precedences = map[token.TokenType]int{
	token.EQ:     EQUALS,
	token.PLUS:   SUM,
	token.LPAREN: CALL,
}

// unsupportedOps are operator tokens the lexer knows but the language
// does not; meeting one is a compile error that names the operator.
var unsupportedOps = map[token.TokenType]bool{
	token.MINUS:   true,
	token.STAR:    true,
	token.SLASH:   true,
	token.PERCENT: true,
	token.LT:      true,
	token.GT:      true,
	token.LTE:     true,
	token.GTE:     true,
	token.NEQ:     true,
	token.NOT:     true,
	token.AND:     true,
	token.OR:      true,
	token.ASSIGN:  true,
}

type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	err *CompileError
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
	// Newlines only matter for bare returns, which use token lines instead.
	for p.peekToken.Type == token.NEWLINE {
		p.peekToken = p.l.NextToken()
	}
}

// ParseProgram builds the AST. Only top-level func declarations produce
// nodes; anything else is skipped and its line recorded, so the caller
// decides between strict rejection and a warning. Parsing is single-pass:
// the first failure aborts.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}

	for !p.curTokenIs(token.EOF) && p.err == nil {
		if p.curTokenIs(token.FUNC) {
			fd := p.parseFuncDecl()
			if fd != nil {
				prog.Funcs = append(prog.Funcs, fd)
			}
			p.nextToken()
		} else {
			p.skipTopLevel(prog)
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	return prog, nil
}

// skipTopLevel consumes one run of non-func top-level tokens, balancing
// braces so a stray block does not swallow a following declaration.
func (p *Parser) skipTopLevel(prog *ast.Program) {
	prog.SkippedLines = append(prog.SkippedLines, p.curToken.Line)
	depth := 0
	for !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			if depth > 0 {
				depth--
			}
		case token.FUNC:
			if depth == 0 {
				return
			}
		}
		p.nextToken()
	}
}

func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	fd := &ast.FuncDecl{Token: p.curToken}

	if !p.expectPeek(token.IDENTIFIER) {
		return nil
	}
	fd.Name = p.curToken.Literal

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	fd.Params = p.parseFuncParams()
	if p.err != nil {
		return nil
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	fd.Body = p.parseBlock()
	if p.err != nil {
		return nil
	}
	return fd
}

// parseFuncParams reads a Swift-shaped parameter list. Each item is one
// or two identifiers (external label plus internal name, `_` allowed as
// label) optionally followed by a type annotation; the binding name is
// the last identifier, labels and types are dropped.
func (p *Parser) parseFuncParams() []string {
	params := []string{}

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params
	}

	for {
		p.nextToken()
		if !p.curTokenIs(token.IDENTIFIER) {
			p.fail(UnsupportedConstruct, p.curToken.Line,
				"Unsupported parameter: expected identifier, got %q", p.curToken.Literal)
			return nil
		}
		name := p.curToken.Literal
		if p.peekTokenIs(token.IDENTIFIER) {
			p.nextToken()
			name = p.curToken.Literal
		}
		if p.peekTokenIs(token.COLON) {
			p.nextToken()
			for !p.peekTokenIs(token.COMMA) && !p.peekTokenIs(token.RPAREN) && !p.peekTokenIs(token.EOF) {
				p.nextToken()
			}
		}
		params = append(params, name)

		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return params
}

// parseBlock parses statements until the closing brace. curToken must be
// the opening brace on entry and is the closing brace on exit.
func (p *Parser) parseBlock() []ast.Statement {
	stmts := []ast.Statement{}

	p.nextToken()
	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) && p.err == nil {
		if p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.nextToken()
	}

	if p.err == nil && !p.curTokenIs(token.RBRACE) {
		p.fail(UnsupportedConstruct, p.curToken.Line, "unexpected end of file in block")
	}
	return stmts
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.LET:
		return p.parseLetStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.IF:
		return p.parseIfStatement()
	case token.VAR, token.WHILE, token.FOR:
		p.fail(UnsupportedConstruct, p.curToken.Line,
			"Unsupported '%s' statement", p.curToken.Literal)
		return nil
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseLetStatement() *ast.LetStmt {
	stmt := &ast.LetStmt{Token: p.curToken}

	if !p.peekTokenIs(token.IDENTIFIER) {
		p.fail(InvalidLet, p.curToken.Line,
			"invalid let declaration: expected identifier, got %q", p.peekToken.Literal)
		return nil
	}
	p.nextToken()
	stmt.Name = p.curToken.Literal

	if !p.peekTokenIs(token.ASSIGN) {
		p.fail(InvalidLet, stmt.Token.Line,
			"invalid let declaration of '%s': binding requires an initializer", stmt.Name)
		return nil
	}
	p.nextToken()
	p.nextToken()

	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseReturnStatement() *ast.ReturnStmt {
	stmt := &ast.ReturnStmt{Token: p.curToken}

	if p.peekTokenIs(token.RBRACE) || p.peekTokenIs(token.SEMICOLON) ||
		p.peekTokenIs(token.EOF) || p.peekToken.Line > stmt.Token.Line {
		return stmt // bare return
	}

	p.nextToken()
	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseIfStatement() *ast.IfStmt {
	stmt := &ast.IfStmt{Token: p.curToken}

	p.nextToken()
	stmt.Condition = p.parseExpression(LOWEST)
	if stmt.Condition == nil {
		return nil
	}

	if !p.peekTokenIs(token.LBRACE) {
		p.fail(MalformedIf, stmt.Token.Line,
			"malformed if: expected '{' after condition, got %q", p.peekToken.Literal)
		return nil
	}
	p.nextToken()
	stmt.Then = p.parseBlock()
	if p.err != nil {
		return nil
	}

	if p.peekTokenIs(token.ELSE) {
		p.nextToken()
		if p.peekTokenIs(token.IF) {
			// else-if is sugar for a nested if in the else arm
			p.nextToken()
			nested := p.parseIfStatement()
			if nested == nil {
				return nil
			}
			stmt.Else = []ast.Statement{nested}
		} else {
			if !p.peekTokenIs(token.LBRACE) {
				p.fail(MalformedIf, stmt.Token.Line,
					"malformed if: expected '{' after else, got %q", p.peekToken.Literal)
				return nil
			}
			p.nextToken()
			stmt.Else = p.parseBlock()
			if p.err != nil {
				return nil
			}
		}
	}
	return stmt
}

func (p *Parser) parseExpressionStatement() *ast.ExpressionStmt {
	stmt := &ast.ExpressionStmt{Token: p.curToken}
	stmt.Expression = p.parseExpression(LOWEST)
	if stmt.Expression == nil {
		return nil
	}
	return stmt
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		p.nextToken()
		left = p.parseInfix(left)
		if left == nil {
			return nil
		}
	}

	if unsupportedOps[p.peekToken.Type] {
		p.fail(UnsupportedOperator, p.peekToken.Line,
			"Unsupported operator %q", p.peekToken.Literal)
		return nil
	}
	return left
}

func (p *Parser) parsePrefix() ast.Expression {
	switch p.curToken.Type {
	case token.IDENTIFIER:
		return &ast.Ident{Token: p.curToken, Name: p.curToken.Literal}
	case token.INT:
		n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.fail(UnsupportedConstruct, p.curToken.Line,
				"invalid integer literal %q", p.curToken.Literal)
			return nil
		}
		return &ast.IntLit{Token: p.curToken, Value: n}
	case token.STRING:
		return &ast.StringLit{Token: p.curToken, Value: p.curToken.Literal}
	case token.TRUE:
		return &ast.BoolLit{Token: p.curToken, Value: true}
	case token.FALSE:
		return &ast.BoolLit{Token: p.curToken, Value: false}
	case token.LPAREN:
		return p.parseGroupedExpression()
	case token.FLOAT:
		p.fail(UnsupportedConstruct, p.curToken.Line,
			"Unsupported float literal %q", p.curToken.Literal)
		return nil
	default:
		if unsupportedOps[p.curToken.Type] {
			p.fail(UnsupportedOperator, p.curToken.Line,
				"Unsupported operator %q", p.curToken.Literal)
			return nil
		}
		p.fail(UnsupportedConstruct, p.curToken.Line,
			"Unsupported expression starting with %q", p.curToken.Literal)
		return nil
	}
}

func (p *Parser) parseInfix(left ast.Expression) ast.Expression {
	switch p.curToken.Type {
	case token.PLUS:
		return p.parseBinaryExpression(left, ast.OpAdd)
	case token.EQ:
		return p.parseBinaryExpression(left, ast.OpEq)
	case token.LPAREN:
		return p.parseCallExpression(left)
	default:
		p.fail(UnsupportedOperator, p.curToken.Line,
			"Unsupported operator %q", p.curToken.Literal)
		return nil
	}
}

func (p *Parser) parseBinaryExpression(left ast.Expression, op ast.Operator) ast.Expression {
	expr := &ast.BinaryExpr{Token: p.curToken, Op: op, Left: left}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseCallExpression(callee ast.Expression) ast.Expression {
	ident, ok := callee.(*ast.Ident)
	if !ok {
		p.fail(UnsupportedConstruct, p.curToken.Line,
			"Unsupported call target %s: only calls by name are allowed", callee.String())
		return nil
	}

	call := &ast.CallExpr{Token: ident.Token, Name: ident.Name}
	call.Args = p.parseCallArguments()
	if p.err != nil {
		return nil
	}
	return call
}

// parseCallArguments strips Swift-style argument labels (`id: expr`)
// before parsing each argument expression.
func (p *Parser) parseCallArguments() []ast.Expression {
	args := []ast.Expression{}

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return args
	}

	for {
		p.nextToken()
		if p.curTokenIs(token.IDENTIFIER) && p.peekTokenIs(token.COLON) {
			p.nextToken()
			p.nextToken()
		}
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		args = append(args, arg)

		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return args
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.fail(UnsupportedConstruct, p.peekToken.Line,
		"expected next token to be %s, got %s instead", t, p.peekToken.Type)
	return false
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) fail(kind ErrorKind, line int, format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	p.err = &CompileError{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line}
}
