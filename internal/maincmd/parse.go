package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mira-lang/tvm/lang/ast"
	"github.com/mira-lang/tvm/lang/parser"
)

// Parse reads a single source file and prints its parsed syntax tree as an
// indented s-expression, without compiling it. Useful for inspecting how
// the parser shaped a program before chasing a codegen bug.
func (c *Cmd) Parse(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) != 1 {
		err := fmt.Errorf("parse: exactly one source file is required")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	prog, err := parser.Parse(src)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	p := ast.Printer{Output: stdio.Stdout}
	if err := p.Print(prog); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	return nil
}
