package ast

import (
	"fmt"
	"io"
	"strings"
)

// Printer renders a Program as an indented s-expression tree, mostly useful
// for the "parse" CLI command and for debugging the parser.
type Printer struct {
	Output io.Writer
}

// Print writes a textual rendering of prog to p.Output.
func (p Printer) Print(prog *Program) error {
	var b strings.Builder
	for _, s := range prog.Stmts {
		printStmt(&b, s, 0)
	}
	_, err := io.WriteString(p.Output, b.String())
	return err
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func printStmt(b *strings.Builder, s Stmt, depth int) {
	indent(b, depth)
	switch s := s.(type) {
	case *Let:
		fmt.Fprintf(b, "(let %s exported=%t\n", s.Name, s.Exported)
		printExpr(b, s.Value, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *ExpressionStmt:
		b.WriteString("(expr-stmt\n")
		printExpr(b, s.Expr, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *If:
		b.WriteString("(if\n")
		printExpr(b, s.Cond, depth+1)
		for _, st := range s.Then {
			printStmt(b, st, depth+1)
		}
		if s.Else != nil {
			indent(b, depth+1)
			b.WriteString("(else\n")
			for _, st := range s.Else {
				printStmt(b, st, depth+2)
			}
			indent(b, depth+1)
			b.WriteString(")\n")
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *While:
		b.WriteString("(while\n")
		printExpr(b, s.Cond, depth+1)
		for _, st := range s.Body {
			printStmt(b, st, depth+1)
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *Print:
		b.WriteString("(print\n")
		printExpr(b, s.Expr, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *Read:
		fmt.Fprintf(b, "(read %s)\n", s.Var)
	case *FunctionDef:
		fmt.Fprintf(b, "(fn %s (%s) exported=%t\n", s.Name, strings.Join(s.Params, " "), s.Exported)
		for _, st := range s.Body {
			printStmt(b, st, depth+1)
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *Return:
		b.WriteString("(return\n")
		if s.Value != nil {
			printExpr(b, s.Value, depth+1)
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *Try:
		fmt.Fprintf(b, "(try (catch-var %s)\n", s.CatchVar)
		for _, st := range s.Body {
			printStmt(b, st, depth+1)
		}
		indent(b, depth+1)
		b.WriteString("(catch\n")
		for _, st := range s.Catch {
			printStmt(b, st, depth+2)
		}
		indent(b, depth+1)
		b.WriteString(")\n")
		indent(b, depth)
		b.WriteString(")\n")
	case *Throw:
		b.WriteString("(throw\n")
		printExpr(b, s.Value, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *Import:
		fmt.Fprintf(b, "(import (%s) from %s)\n", strings.Join(s.Names, " "), s.ModuleName)
	case *Export:
		fmt.Fprintf(b, "(export %s)\n", s.Name)
	default:
		fmt.Fprintf(b, "(unknown-stmt %T)\n", s)
	}
}

func printExpr(b *strings.Builder, e Expr, depth int) {
	indent(b, depth)
	switch e := e.(type) {
	case *NumberLit:
		fmt.Fprintf(b, "(number %d)\n", e.Value)
	case *StringLit:
		fmt.Fprintf(b, "(string %q)\n", e.Value)
	case *Identifier:
		fmt.Fprintf(b, "(ident %s)\n", e.Name)
	case *Binary:
		fmt.Fprintf(b, "(binary %s\n", e.Op)
		printExpr(b, e.Left, depth+1)
		printExpr(b, e.Right, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *Unary:
		fmt.Fprintf(b, "(unary %s\n", e.Op)
		printExpr(b, e.Operand, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *Assignment:
		b.WriteString("(assign\n")
		printExpr(b, e.Target, depth+1)
		printExpr(b, e.Value, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	case *Call:
		fmt.Fprintf(b, "(call %s\n", e.Name)
		for _, a := range e.Args {
			printExpr(b, a, depth+1)
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *ArrayLit:
		b.WriteString("(array\n")
		for _, el := range e.Elems {
			printExpr(b, el, depth+1)
		}
		indent(b, depth)
		b.WriteString(")\n")
	case *ArrayAccess:
		b.WriteString("(index\n")
		printExpr(b, e.Array, depth+1)
		printExpr(b, e.Index, depth+1)
		indent(b, depth)
		b.WriteString(")\n")
	default:
		fmt.Fprintf(b, "(unknown-expr %T)\n", e)
	}
}
