// Package parser implements a recursive-descent, precedence-climbing parser
// that turns a token stream into an ast.Program.
package parser

import (
	"strconv"

	"github.com/mica-lang/mica/internal/ast"
	"github.com/mica-lang/mica/internal/lerrors"
	"github.com/mica-lang/mica/internal/lexer"
	"github.com/mica-lang/mica/internal/token"
)

// Parser is the object that turns one source buffer into an ast.Program. It
// is not reusable across buffers; construct a fresh one per source.
type Parser struct {
	lex      *lexer.Lexer
	filename string

	cur  token.Token
	prev token.Token

	errs      []*lerrors.Error
	panicking bool
}

// New constructs a Parser over src, identified by filename for diagnostics.
func New(filename string, src []byte) *Parser {
	p := &Parser{lex: lexer.New(src), filename: filename}
	p.advance()
	return p
}

// Parse consumes the whole token stream and returns the resulting program
// along with any diagnostics. ok is false whenever any diagnostic was
// reported, and prog should then be discarded.
func Parse(filename string, src []byte) (prog *ast.Program, errs []*lerrors.Error, ok bool) {
	p := New(filename, src)
	stmts := []ast.Node{}
	line := p.cur.Line
	for p.cur.Kind != token.EOS {
		if stmt := p.declaration(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	ok = len(p.errs) == 0 || !p.lastErrAtEOF()
	return ast.NewProgram(line, stmts), p.errs, ok && len(p.errs) == 0
}

func (p *Parser) lastErrAtEOF() bool {
	if len(p.errs) == 0 {
		return false
	}
	return p.cur.Kind == token.EOS
}

func (p *Parser) advance() {
	p.prev = p.cur
	for {
		p.cur = p.lex.Next()
		if p.cur.Kind != token.Error {
			return
		}
		p.errorAt(p.cur, p.cur.Lexeme)
	}
}

func (p *Parser) check(k token.Kind) bool { return p.cur.Kind == k }

func (p *Parser) match(k token.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(k token.Kind, msg string) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	p.errorAt(p.cur, msg)
	return false
}

// errorAt reports a diagnostic and enters panic mode; subsequent errors are
// suppressed until synchronize() consumes a statement boundary.
func (p *Parser) errorAt(tok token.Token, msg string) {
	if p.panicking {
		return
	}
	p.panicking = true
	p.errs = append(p.errs, lerrors.NewParse(p.filename, tok.Line, 0, "%s", msg))
}

func (p *Parser) synchronize() {
	p.panicking = false
	for p.cur.Kind != token.EOS {
		if p.prev.Kind == token.Semicolon {
			return
		}
		if p.cur.IsSynchronizing() {
			return
		}
		p.advance()
	}
}

// ---- statements ----

func (p *Parser) declaration() ast.Node {
	stmt := p.statement()
	if p.panicking {
		p.synchronize()
	}
	return stmt
}

func (p *Parser) statement() ast.Node {
	line := p.cur.Line
	switch p.cur.Kind {
	case token.Let:
		return p.letStatement()
	case token.Fn:
		return p.fnStatement()
	case token.If:
		return p.ifStatement()
	case token.While:
		return p.whileStatement()
	case token.For:
		return p.forInStatement()
	case token.Loop:
		p.advance()
		body := p.block()
		return ast.NewLoopStmt(line, body)
	case token.Break:
		p.advance()
		return ast.NewBreakStmt(line)
	case token.Return:
		return p.returnStatement()
	case token.LBrace:
		return p.block()
	default:
		return p.exprOrAssignStatement()
	}
}

func (p *Parser) letStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'let'
	mutable := p.match(token.Mut)
	if !p.expect(token.Identifier, "expected identifier after 'let'") {
		return nil
	}
	name := p.prev.Lexeme
	if !p.expect(token.Assign, "expected '=' in let binding") {
		return nil
	}
	value := p.expression()
	return ast.NewLetStmt(line, name, mutable, value)
}

func (p *Parser) fnStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'fn'
	if !p.expect(token.Identifier, "expected function name") {
		return nil
	}
	name := p.prev.Lexeme
	params := p.paramList()
	body := p.block()
	return ast.NewFnStmt(line, name, params, body)
}

func (p *Parser) paramList() []string {
	params := []string{}
	if !p.expect(token.LParen, "expected '(' after function name") {
		return params
	}
	if !p.check(token.RParen) {
		for {
			if !p.expect(token.Identifier, "expected parameter name") {
				break
			}
			params = append(params, p.prev.Lexeme)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	return params
}

func (p *Parser) block() *ast.BlockStmt {
	line := p.cur.Line
	p.expect(token.LBrace, "expected '{'")
	stmts := []ast.Node{}
	for !p.check(token.RBrace) && !p.check(token.EOS) {
		if stmt := p.declaration(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.expect(token.RBrace, "expected '}'")
	return ast.NewBlockStmt(line, stmts)
}

func (p *Parser) ifStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'if'
	cond := p.expression()
	then := p.block()
	var els *ast.BlockStmt
	if p.match(token.Else) {
		els = p.block()
	}
	return ast.NewIfStmt(line, cond, then, els)
}

func (p *Parser) whileStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'while'
	cond := p.expression()
	body := p.block()
	return ast.NewWhileStmt(line, cond, body)
}

func (p *Parser) forInStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'for'
	if !p.expect(token.Identifier, "expected loop variable name") {
		return nil
	}
	name := p.prev.Lexeme
	if !p.expect(token.In, "expected 'in' in for-in loop") {
		return nil
	}
	iter := p.expression()
	body := p.block()
	return ast.NewForInStmt(line, name, iter, body)
}

func (p *Parser) returnStatement() ast.Node {
	line := p.cur.Line
	p.advance() // 'return'
	if p.check(token.RBrace) || p.check(token.EOS) || p.check(token.Semicolon) {
		return ast.NewReturnStmt(line, nil)
	}
	return ast.NewReturnStmt(line, p.expression())
}

func (p *Parser) exprOrAssignStatement() ast.Node {
	line := p.cur.Line
	expr := p.expression()
	if p.match(token.Assign) {
		switch expr.(type) {
		case *ast.Identifier, *ast.IndexExpr:
			value := p.expression()
			return ast.NewAssignStmt(line, expr, value)
		default:
			p.errorAt(p.prev, "invalid assignment target")
			return nil
		}
	}
	return ast.NewExprStmt(line, expr)
}

// ---- expressions: precedence climbing ----

type precedence int

const (
	precNone precedence = iota
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precUnary
	precCall
)

func infixPrecedence(k token.Kind) precedence {
	switch k {
	case token.Or:
		return precOr
	case token.And:
		return precAnd
	case token.Eq, token.NotEq:
		return precEquality
	case token.Lt, token.LtEq, token.Gt, token.GtEq:
		return precComparison
	case token.Plus, token.Minus:
		return precAdditive
	case token.Star, token.Slash, token.Percent:
		return precMultiplicative
	case token.LParen, token.LBracket, token.Dot:
		return precCall
	default:
		return precNone
	}
}

func (p *Parser) expression() ast.Node { return p.precedenceExpr(precOr) }

func (p *Parser) precedenceExpr(min precedence) ast.Node {
	left := p.unary()
	for {
		prec := infixPrecedence(p.cur.Kind)
		if prec == precNone || prec < min {
			return left
		}
		opTok := p.cur
		p.advance()
		right := p.precedenceExpr(prec + 1)
		left = ast.NewBinaryExpr(opTok.Line, tokenToBinOp(opTok.Kind), left, right)
	}
}

func tokenToBinOp(k token.Kind) ast.BinOp {
	switch k {
	case token.Plus:
		return ast.OpAdd
	case token.Minus:
		return ast.OpSub
	case token.Star:
		return ast.OpMul
	case token.Slash:
		return ast.OpDiv
	case token.Percent:
		return ast.OpMod
	case token.Eq:
		return ast.OpEq
	case token.NotEq:
		return ast.OpNe
	case token.Lt:
		return ast.OpLt
	case token.LtEq:
		return ast.OpLe
	case token.Gt:
		return ast.OpGt
	case token.GtEq:
		return ast.OpGe
	case token.And:
		return ast.OpAnd
	case token.Or:
		return ast.OpOr
	default:
		return ""
	}
}

func (p *Parser) unary() ast.Node {
	if p.check(token.Minus) {
		line := p.cur.Line
		p.advance()
		operand := p.unary()
		return ast.NewUnaryExpr(line, ast.OpSub, operand)
	}
	return p.postfix()
}

func (p *Parser) postfix() ast.Node {
	expr := p.primary()
	for {
		switch {
		case p.check(token.LParen):
			line := p.cur.Line
			p.advance()
			args := p.argList(token.RParen)
			expr = ast.NewCallExpr(line, expr, args)
		case p.check(token.LBracket):
			line := p.cur.Line
			p.advance()
			idx := p.expression()
			p.expect(token.RBracket, "expected ']' after index")
			expr = ast.NewIndexExpr(line, expr, idx)
		case p.check(token.Dot):
			line := p.cur.Line
			p.advance()
			if !p.expect(token.Identifier, "expected method name after '.'") {
				return expr
			}
			if p.prev.Lexeme != "iter" {
				p.errorAt(p.prev, "only '.iter()' chains are supported")
				return expr
			}
			p.expect(token.LParen, "expected '(' after 'iter'")
			p.expect(token.RParen, "expected ')' after 'iter('")
			expr = p.iterChain(line, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) iterChain(line int, source ast.Node) ast.Node {
	methods := []ast.IterMethodCall{}
	for p.match(token.Dot) {
		if !p.expect(token.Identifier, "expected method name") {
			break
		}
		name := p.prev.Lexeme
		p.expect(token.LParen, "expected '(' after method name")
		args := p.argList(token.RParen)
		call := ast.IterMethodCall{Name: name}
		if name == "fold" && len(args) >= 2 {
			call.Args = args[:1]
			call.Seed = args[1]
		} else {
			call.Args = args
		}
		methods = append(methods, call)
	}
	return ast.NewIterChainExpr(line, source, methods)
}

func (p *Parser) argList(end token.Kind) []ast.Node {
	args := []ast.Node{}
	if p.check(end) {
		p.advance()
		return args
	}
	for {
		args = append(args, p.expression())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(end, "expected closing delimiter in argument list")
	return args
}

func (p *Parser) primary() ast.Node {
	line := p.cur.Line
	switch p.cur.Kind {
	case token.Integer:
		v, _ := strconv.ParseInt(p.cur.Lexeme, 10, 64)
		p.advance()
		return ast.NewIntLit(line, v)
	case token.Float:
		v, _ := strconv.ParseFloat(p.cur.Lexeme, 64)
		p.advance()
		return ast.NewFloatLit(line, v)
	case token.True:
		p.advance()
		return ast.NewBoolLit(line, true)
	case token.False:
		p.advance()
		return ast.NewBoolLit(line, false)
	case token.None:
		p.advance()
		return ast.NewNoneLit(line)
	case token.String:
		lit := p.cur.Lexeme
		p.advance()
		return ast.NewStringLit(line, lit[1:len(lit)-1])
	case token.Identifier:
		name := p.cur.Lexeme
		p.advance()
		return ast.NewIdentifier(line, name)
	case token.LParen:
		p.advance()
		expr := p.expression()
		p.expect(token.RParen, "expected ')' after expression")
		return expr
	case token.LBracket:
		p.advance()
		elems := p.argList(token.RBracket)
		return ast.NewArrayLit(line, elems)
	case token.Pipe:
		return p.closureLit()
	default:
		p.errorAt(p.cur, "expected expression")
		p.advance()
		return ast.NewNoneLit(line)
	}
}

func (p *Parser) closureLit() ast.Node {
	line := p.cur.Line
	p.advance() // '|'
	params := []string{}
	if !p.check(token.Pipe) {
		for {
			if !p.expect(token.Identifier, "expected parameter name") {
				break
			}
			params = append(params, p.prev.Lexeme)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.Pipe, "expected closing '|' in closure parameters")
	var body *ast.BlockStmt
	if p.check(token.LBrace) {
		body = p.block()
	} else {
		exprLine := p.cur.Line
		expr := p.expression()
		body = ast.NewBlockStmt(exprLine, []ast.Node{ast.NewReturnStmt(exprLine, expr)})
	}
	return ast.NewClosureLit(line, params, body)
}
