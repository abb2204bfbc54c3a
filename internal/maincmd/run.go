package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mira-lang/tvm/lang/machine"
)

// Run compiles a single source file and executes it, printing the output
// log one value per line.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) != 1 {
		err := fmt.Errorf("run: exactly one source file is required")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	prog, err := compileFile(args[0], !c.NoOptimize)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	vm := machine.New(prog.Bytecode)
	if err := vm.Run(); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	for _, v := range vm.Output() {
		fmt.Fprintln(stdio.Stdout, v)
	}
	return nil
}
