package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mira-lang/tvm/lang/bundle"
	"github.com/mira-lang/tvm/lang/linker"
)

// Link compiles each given source file as a separate module (named after
// its file, extension stripped), links them together, and prints the
// merged bundle as JSON.
func (c *Cmd) Link(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) == 0 {
		err := fmt.Errorf("link: at least one source file is required")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	modules := make([]linker.Module, 0, len(args))
	for _, path := range args {
		prog, err := compileFile(path, !c.NoOptimize)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
		modules = append(modules, linker.Module{Name: moduleName(path), Program: prog})
	}

	res := linker.Link(modules)
	for _, linkErr := range res.Errors {
		fmt.Fprintln(stdio.Stderr, linkErr)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("link: %d error(s)", len(res.Errors))
	}

	symbols := make(map[string]int, res.SymbolTable.Len())
	res.SymbolTable.Each(func(name string, addr int) { symbols[name] = addr })

	b := &bundle.Bundle{
		Format:      bundle.Format,
		Version:     bundle.CurrentVersion,
		Metadata:    bundle.Metadata{Name: "linked"},
		Bytecode:    res.Bytecode,
		SymbolTable: symbols,
		Exports:     symbols,
	}
	data, err := bundle.Marshal(b)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	fmt.Fprintln(stdio.Stdout, string(data))
	return nil
}
