package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mira-lang/tvm/lang/compiler"
)

// Disasm compiles a single source file and prints an addressed
// disassembly of its bytecode.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) != 1 {
		err := fmt.Errorf("disasm: exactly one source file is required")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	prog, err := compileFile(args[0], !c.NoOptimize)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	fmt.Fprint(stdio.Stdout, compiler.Disassemble(prog))
	return nil
}
