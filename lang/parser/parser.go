// Package parser implements a hand-written recursive-descent parser that
// turns a tvm token stream into an *ast.Program.
package parser

import (
	"fmt"
	"strings"

	"github.com/mira-lang/tvm/lang/ast"
	"github.com/mira-lang/tvm/lang/lexer"
	"github.com/mira-lang/tvm/lang/token"
)

// Error describes a single parse failure.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ErrorList collects every Error produced during a parse.
type ErrorList []*Error

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (and %d more errors)", el[0], len(el)-1)
	return b.String()
}

// maxIterations caps how many statements the top-level, block and
// function-body loops parse. A statement that consumes no token is handled
// separately: it is reported and one token is skipped.
const maxIterations = 1_000_000

// Parser holds the token stream and cursor for a single parse.
type Parser struct {
	toks []lexer.TokenValue
	pos  int
	err  ErrorList
}

// Parse tokenizes and parses src, returning the resulting program. Lex and
// parse errors are both surfaced through the returned error (as an
// ErrorList), but whatever could be parsed is still returned.
func Parse(src []byte) (*ast.Program, error) {
	toks, lexErr := lexer.ScanAll(src)
	p := &Parser{toks: toks}
	prog := p.parseProgram()

	var all ErrorList
	if le, ok := lexErr.(lexer.ErrorList); ok {
		for _, e := range le {
			all = append(all, &Error{Pos: e.Pos, Msg: e.Msg})
		}
	}
	all = append(all, p.err...)
	if len(all) > 0 {
		return prog, all
	}
	return prog, nil
}

func (p *Parser) cur() lexer.TokenValue {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos]
}

func (p *Parser) curTok() token.Token { return p.cur().Token }

func (p *Parser) advance() lexer.TokenValue {
	tv := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return tv
}

func (p *Parser) at(tok token.Token) bool { return p.curTok() == tok }

func (p *Parser) accept(tok token.Token) (lexer.TokenValue, bool) {
	if p.at(tok) {
		return p.advance(), true
	}
	return lexer.TokenValue{}, false
}

func (p *Parser) expect(tok token.Token) lexer.TokenValue {
	if tv, ok := p.accept(tok); ok {
		return tv
	}
	tv := p.cur()
	p.errorf(tv.Pos, "expected %s, got %s", tok, tv.Token)
	return tv
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	p.err = append(p.err, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for iter := 0; !p.at(token.EOF); iter++ {
		if iter >= maxIterations {
			p.errorf(p.cur().Pos, "parser iteration cap exceeded")
			break
		}
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Stmts = append(prog.Stmts, stmt)
		}
		if p.pos == before {
			// guard against statement parsing failing to consume any token
			p.errorf(p.cur().Pos, "parser failed to make progress at %s", p.cur().Token)
			p.advance()
		}
	}
	return prog
}

// parseBlock parses a brace-delimited statement list: "{" statement* "}".
func (p *Parser) parseBlock() []ast.Stmt {
	p.expect(token.LBRACE)
	var stmts []ast.Stmt
	for iter := 0; !p.at(token.RBRACE) && !p.at(token.EOF); iter++ {
		if iter >= maxIterations {
			p.errorf(p.cur().Pos, "parser iteration cap exceeded in block")
			break
		}
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.pos == before {
			p.errorf(p.cur().Pos, "parser failed to make progress at %s", p.cur().Token)
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return stmts
}
