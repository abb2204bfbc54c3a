package maincmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mna/mainer"

	"github.com/mira-lang/tvm/lang/bundle"
	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/optimizer"
	"github.com/mira-lang/tvm/lang/parser"
)

// compileFile runs the full front end (parse + codegen, optionally
// optimized) over a single source file.
func compileFile(path string, optimize bool) (*compiler.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	prog, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out, err := compiler.Compile(prog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if optimize {
		out, _ = optimizer.Run(out)
	}
	return out, nil
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Compile reads a single source file and prints its compiled bundle as JSON.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_ = ctx
	if len(args) != 1 {
		err := fmt.Errorf("compile: exactly one source file is required")
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	prog, err := compileFile(args[0], !c.NoOptimize)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	b := bundle.FromProgram(prog, bundle.Metadata{Name: moduleName(args[0])})
	data, err := bundle.Marshal(b)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	fmt.Fprintln(stdio.Stdout, string(data))
	return nil
}
