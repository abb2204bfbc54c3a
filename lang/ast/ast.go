// Package ast defines the syntax tree produced by the parser: an ordered
// program of statements built from tagged sum types for statements and
// expressions, as called for by the language's variant-heavy grammar.
package ast

import "github.com/mira-lang/tvm/lang/token"

// Node is implemented by every statement and expression node.
type Node interface {
	Pos() token.Position
}

// Program is the root of a parsed source text: an ordered sequence of
// statements.
type Program struct {
	Stmts []Stmt
}

// Stmt is implemented by every statement variant.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by every expression variant.
type Expr interface {
	Node
	exprNode()
}
