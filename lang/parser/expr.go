package parser

import (
	"github.com/mira-lang/tvm/lang/ast"
	"github.com/mira-lang/tvm/lang/token"
)

// parseExpression is the entry point into the precedence chain: assignment
// (lowest) down through equality, comparison, additive, multiplicative,
// unary, to primary (highest), per the grammar in the language reference.
func (p *Parser) parseExpression() ast.Expr {
	return p.parseAssignment()
}

// parseAssignment is right-associative: "a = b = c" parses as "a = (b = c)".
func (p *Parser) parseAssignment() ast.Expr {
	left := p.parseEquality()
	if _, ok := p.accept(token.ASSIGN); ok {
		pos := left.Pos()
		value := p.parseAssignment() // right-associative
		target, ok := left.(ast.AssignTarget)
		if !ok {
			p.errorf(pos, "invalid assignment target")
			return left
		}
		return &ast.Assignment{Position: pos, Target: target, Value: value}
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseComparison()
	for p.at(token.EQ) || p.at(token.NEQ) {
		op := p.advance()
		right := p.parseComparison()
		left = &ast.Binary{Position: op.Pos, Op: op.Token.String(), Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	for p.at(token.LT) || p.at(token.GT) || p.at(token.LE) || p.at(token.GE) {
		op := p.advance()
		right := p.parseAdditive()
		left = &ast.Binary{Position: op.Pos, Op: op.Token.String(), Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := p.advance()
		right := p.parseMultiplicative()
		left = &ast.Binary{Position: op.Pos, Op: op.Token.String(), Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.at(token.STAR) || p.at(token.SLASH) {
		op := p.advance()
		right := p.parseUnary()
		left = &ast.Binary{Position: op.Pos, Op: op.Token.String(), Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.at(token.MINUS) {
		op := p.advance()
		operand := p.parseUnary()
		return &ast.Unary{Position: op.Pos, Op: "-", Operand: operand}
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any chain of call and
// index suffixes: identifier followed by "(" becomes a call; any expression
// followed by "[" becomes an array access, and these chain (e.g. a[0][1]).
func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch {
		case p.at(token.LBRACK):
			pos := p.advance().Pos
			idx := p.parseExpression()
			p.expect(token.RBRACK)
			expr = &ast.ArrayAccess{Position: pos, Array: expr, Index: idx}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tv := p.cur()
	switch tv.Token {
	case token.NUMBER:
		p.advance()
		return &ast.NumberLit{Position: tv.Pos, Value: tv.IntVal}

	case token.STRING:
		p.advance()
		return &ast.StringLit{Position: tv.Pos, Value: tv.Lit}

	case token.IDENT:
		p.advance()
		if p.at(token.LPAREN) {
			return p.parseCall(tv.Pos, tv.Lit)
		}
		return &ast.Identifier{Position: tv.Pos, Name: tv.Lit}

	case token.LPAREN:
		p.advance()
		expr := p.parseExpression()
		p.expect(token.RPAREN)
		return expr

	case token.LBRACK:
		return p.parseArrayLit()

	default:
		p.errorf(tv.Pos, "unexpected token %s in expression", tv.Token)
		p.advance() // make progress
		return &ast.NumberLit{Position: tv.Pos, Value: 0}
	}
}

func (p *Parser) parseCall(pos token.Position, name string) ast.Expr {
	p.expect(token.LPAREN)
	var args []ast.Expr
	if !p.at(token.RPAREN) {
		args = append(args, p.parseExpression())
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			args = append(args, p.parseExpression())
		}
	}
	p.expect(token.RPAREN)
	return &ast.Call{Position: pos, Name: name, Args: args}
}

func (p *Parser) parseArrayLit() ast.Expr {
	pos := p.expect(token.LBRACK).Pos
	var elems []ast.Expr
	if !p.at(token.RBRACK) {
		elems = append(elems, p.parseExpression())
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			elems = append(elems, p.parseExpression())
		}
	}
	p.expect(token.RBRACK)
	return &ast.ArrayLit{Position: pos, Elems: elems}
}
