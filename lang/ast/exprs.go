package ast

import "github.com/mira-lang/tvm/lang/token"

// NumberLit is an integer literal.
type NumberLit struct {
	Position token.Position
	Value    int64
}

// StringLit is a string literal.
type StringLit struct {
	Position token.Position
	Value    string
}

// Identifier references a variable by name.
type Identifier struct {
	Position token.Position
	Name     string
}

// Binary is a binary operator application. Op is the operator's token text
// (e.g. "+", "==", "<=").
type Binary struct {
	Position token.Position
	Op       string
	Left     Expr
	Right    Expr
}

// Unary is a prefix operator application. The grammar only admits unary
// minus.
type Unary struct {
	Position token.Position
	Op       string
	Operand  Expr
}

// AssignTarget is implemented by the expression variants that may appear on
// the left of an assignment: Identifier and ArrayAccess.
type AssignTarget interface {
	Expr
	assignTargetNode()
}

// Assignment stores Value into Target and yields Value, enabling chained
// assignment.
type Assignment struct {
	Position token.Position
	Target   AssignTarget
	Value    Expr
}

// Call invokes the function Name with Args.
type Call struct {
	Position token.Position
	Name     string
	Args     []Expr
}

// ArrayLit is an array literal.
type ArrayLit struct {
	Position token.Position
	Elems    []Expr
}

// ArrayAccess indexes Array at Index. Chaining (e.g. a[0][1]) nests
// ArrayAccess nodes.
type ArrayAccess struct {
	Position token.Position
	Array    Expr
	Index    Expr
}

func (e *NumberLit) Pos() token.Position   { return e.Position }
func (e *StringLit) Pos() token.Position   { return e.Position }
func (e *Identifier) Pos() token.Position  { return e.Position }
func (e *Binary) Pos() token.Position      { return e.Position }
func (e *Unary) Pos() token.Position       { return e.Position }
func (e *Assignment) Pos() token.Position  { return e.Position }
func (e *Call) Pos() token.Position        { return e.Position }
func (e *ArrayLit) Pos() token.Position    { return e.Position }
func (e *ArrayAccess) Pos() token.Position { return e.Position }

func (*NumberLit) exprNode()   {}
func (*StringLit) exprNode()   {}
func (*Identifier) exprNode()  {}
func (*Binary) exprNode()      {}
func (*Unary) exprNode()       {}
func (*Assignment) exprNode()  {}
func (*Call) exprNode()        {}
func (*ArrayLit) exprNode()    {}
func (*ArrayAccess) exprNode() {}

func (*Identifier) assignTargetNode()  {}
func (*ArrayAccess) assignTargetNode() {}
