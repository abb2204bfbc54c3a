package parser

import (
	"github.com/mira-lang/tvm/lang/ast"
	"github.com/mira-lang/tvm/lang/token"
)

// parseStatement dispatches on the leading token to the right statement
// production.
func (p *Parser) parseStatement() ast.Stmt {
	switch p.curTok() {
	case token.LET:
		return p.parseLet(false)
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.PRINT:
		return p.parsePrint()
	case token.READ:
		return p.parseRead()
	case token.FN:
		return p.parseFunctionDef(false)
	case token.RETURN:
		return p.parseReturn()
	case token.TRY:
		return p.parseTry()
	case token.THROW:
		return p.parseThrow()
	case token.IMPORT:
		return p.parseImport()
	case token.EXPORT:
		return p.parseExport()
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseLet(exported bool) ast.Stmt {
	pos := p.expect(token.LET).Pos
	name := p.expect(token.IDENT).Lit
	p.expect(token.ASSIGN)
	value := p.parseExpression()
	p.expect(token.SEMI)
	return &ast.Let{Position: pos, Name: name, Value: value, Exported: exported}
}

func (p *Parser) parseIf() ast.Stmt {
	pos := p.expect(token.IF).Pos
	p.expect(token.LPAREN)
	cond := p.parseExpression()
	p.expect(token.RPAREN)
	then := p.parseBlock()
	var els []ast.Stmt
	if _, ok := p.accept(token.ELSE); ok {
		els = p.parseBlock()
	}
	return &ast.If{Position: pos, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseWhile() ast.Stmt {
	pos := p.expect(token.WHILE).Pos
	p.expect(token.LPAREN)
	cond := p.parseExpression()
	p.expect(token.RPAREN)
	body := p.parseBlock()
	return &ast.While{Position: pos, Cond: cond, Body: body}
}

func (p *Parser) parsePrint() ast.Stmt {
	pos := p.expect(token.PRINT).Pos
	expr := p.parseExpression()
	p.expect(token.SEMI)
	return &ast.Print{Position: pos, Expr: expr}
}

func (p *Parser) parseRead() ast.Stmt {
	pos := p.expect(token.READ).Pos
	name := p.expect(token.IDENT).Lit
	p.expect(token.SEMI)
	return &ast.Read{Position: pos, Var: name}
}

// parseFunctionDef parses "fn" IDENT "(" params? ")" block. The body's
// statement loop rejects a function definition directly inside it; one
// nested in an inner block (if/while/try) or after "export" is parsed here
// and rejected by the compiler as valid only at the top level.
func (p *Parser) parseFunctionDef(exported bool) ast.Stmt {
	pos := p.expect(token.FN).Pos
	name := p.expect(token.IDENT).Lit
	p.expect(token.LPAREN)
	var params []string
	if !p.at(token.RPAREN) {
		params = append(params, p.expect(token.IDENT).Lit)
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			params = append(params, p.expect(token.IDENT).Lit)
		}
	}
	p.expect(token.RPAREN)

	p.expect(token.LBRACE)
	var body []ast.Stmt
	for iter := 0; !p.at(token.RBRACE) && !p.at(token.EOF); iter++ {
		if iter >= maxIterations {
			p.errorf(p.cur().Pos, "parser iteration cap exceeded in function body")
			break
		}
		if p.at(token.FN) {
			p.errorf(p.cur().Pos, "function definitions may not be nested")
			// skip the nested definition's tokens to keep making progress
			p.parseFunctionDef(false)
			continue
		}
		before := p.pos
		stmt := p.parseStatement()
		if stmt != nil {
			body = append(body, stmt)
		}
		if p.pos == before {
			p.errorf(p.cur().Pos, "parser failed to make progress at %s", p.cur().Token)
			p.advance()
		}
	}
	p.expect(token.RBRACE)

	return &ast.FunctionDef{Position: pos, Name: name, Params: params, Body: body, Exported: exported}
}

func (p *Parser) parseReturn() ast.Stmt {
	pos := p.expect(token.RETURN).Pos
	var value ast.Expr
	if !p.at(token.SEMI) {
		value = p.parseExpression()
	}
	p.expect(token.SEMI)
	return &ast.Return{Position: pos, Value: value}
}

func (p *Parser) parseTry() ast.Stmt {
	pos := p.expect(token.TRY).Pos
	body := p.parseBlock()
	p.expect(token.CATCH)
	p.expect(token.LPAREN)
	var catchVar string
	if p.at(token.IDENT) {
		catchVar = p.advance().Lit
	}
	p.expect(token.RPAREN)
	catch := p.parseBlock()
	return &ast.Try{Position: pos, Body: body, Catch: catch, CatchVar: catchVar}
}

func (p *Parser) parseThrow() ast.Stmt {
	pos := p.expect(token.THROW).Pos
	value := p.parseExpression()
	p.expect(token.SEMI)
	return &ast.Throw{Position: pos, Value: value}
}

// parseImport accepts both "import { a, b } from m" and "import a from m".
func (p *Parser) parseImport() ast.Stmt {
	pos := p.expect(token.IMPORT).Pos
	var names []string
	if _, ok := p.accept(token.LBRACE); ok {
		names = append(names, p.expect(token.IDENT).Lit)
		for {
			if _, ok := p.accept(token.COMMA); !ok {
				break
			}
			names = append(names, p.expect(token.IDENT).Lit)
		}
		p.expect(token.RBRACE)
	} else {
		names = append(names, p.expect(token.IDENT).Lit)
	}
	p.expect(token.FROM)
	moduleName := p.parseModuleName()
	p.expect(token.SEMI)
	return &ast.Import{Position: pos, Names: names, ModuleName: moduleName}
}

// parseModuleName accepts either a bare identifier or a quoted string as the
// module name, per the grammar's (STRING|IDENT) alternative.
func (p *Parser) parseModuleName() string {
	if p.at(token.STRING) {
		return p.advance().Lit
	}
	return p.expect(token.IDENT).Lit
}

// parseExport handles the "export" adjective, which marks the very next fn
// or let declaration.
func (p *Parser) parseExport() ast.Stmt {
	p.expect(token.EXPORT)
	switch p.curTok() {
	case token.FN:
		return p.parseFunctionDef(true)
	case token.LET:
		return p.parseLet(true)
	default:
		p.errorf(p.cur().Pos, "expected fn or let after export, got %s", p.curTok())
		return nil
	}
}

func (p *Parser) parseExpressionStatement() ast.Stmt {
	pos := p.cur().Pos
	expr := p.parseExpression()
	p.expect(token.SEMI)
	return &ast.ExpressionStmt{Position: pos, Expr: expr}
}
