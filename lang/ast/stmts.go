package ast

import "github.com/mira-lang/tvm/lang/token"

// Let declares a variable and initializes it with Value. If Exported is
// true it was marked with the "export" adjective.
type Let struct {
	Position token.Position
	Name     string
	Value    Expr
	Exported bool
}

// ExpressionStmt evaluates Expr and discards its value.
type ExpressionStmt struct {
	Position token.Position
	Expr     Expr
}

// If is a conditional with an optional else branch.
type If struct {
	Position token.Position
	Cond     Expr
	Then     []Stmt
	Else     []Stmt // nil if there is no else clause
}

// While loops while Cond is non-zero.
type While struct {
	Position token.Position
	Cond     Expr
	Body     []Stmt
}

// Print evaluates Expr and appends it to the output log.
type Print struct {
	Position token.Position
	Expr     Expr
}

// Read assigns the next value off the input queue to Var.
type Read struct {
	Position token.Position
	Var      string
}

// FunctionDef declares a named function. Function bodies may not nest
// further function definitions.
type FunctionDef struct {
	Position token.Position
	Name     string
	Params   []string
	Body     []Stmt
	Exported bool
}

// Return exits the enclosing function, optionally with a value.
type Return struct {
	Position token.Position
	Value    Expr // nil for a bare return
}

// Try runs Body; if it throws, CatchVar (if non-empty) is bound to the
// thrown value and Catch runs.
type Try struct {
	Position token.Position
	Body     []Stmt
	Catch    []Stmt
	CatchVar string // empty if the catch clause binds no variable
}

// Throw raises Value as an exception.
type Throw struct {
	Position token.Position
	Value    Expr
}

// Import binds Names from the module ModuleName.
type Import struct {
	Position   token.Position
	Names      []string
	ModuleName string
}

// Export marks an already-declared top-level name for promotion to the
// module's export map.
type Export struct {
	Position token.Position
	Name     string
}

func (s *Let) Pos() token.Position            { return s.Position }
func (s *ExpressionStmt) Pos() token.Position  { return s.Position }
func (s *If) Pos() token.Position              { return s.Position }
func (s *While) Pos() token.Position            { return s.Position }
func (s *Print) Pos() token.Position           { return s.Position }
func (s *Read) Pos() token.Position            { return s.Position }
func (s *FunctionDef) Pos() token.Position     { return s.Position }
func (s *Return) Pos() token.Position          { return s.Position }
func (s *Try) Pos() token.Position             { return s.Position }
func (s *Throw) Pos() token.Position           { return s.Position }
func (s *Import) Pos() token.Position          { return s.Position }
func (s *Export) Pos() token.Position          { return s.Position }

func (*Let) stmtNode()            {}
func (*ExpressionStmt) stmtNode() {}
func (*If) stmtNode()             {}
func (*While) stmtNode()          {}
func (*Print) stmtNode()          {}
func (*Read) stmtNode()           {}
func (*FunctionDef) stmtNode()    {}
func (*Return) stmtNode()         {}
func (*Try) stmtNode()            {}
func (*Throw) stmtNode()          {}
func (*Import) stmtNode()         {}
func (*Export) stmtNode()         {}
