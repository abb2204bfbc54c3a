package optimizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/optimizer"
	"github.com/mira-lang/tvm/lang/parser"
)

func compile(t *testing.T, src string) *compiler.Program {
	t.Helper()
	prog, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	return out
}

func TestRun_ConstantFoldsAddition(t *testing.T) {
	p := compile(t, `print 5 + 3;`)
	out, stats := optimizer.Run(p)

	var sawFoldedEight bool
	for i := 0; i < len(out.Bytecode); i++ {
		op := compiler.Opcode(out.Bytecode[i])
		if op == compiler.PUSH && out.Bytecode[i+1] == 8 {
			sawFoldedEight = true
		}
		i += compiler.Arity(op)
	}
	assert.True(t, sawFoldedEight)
	assert.Less(t, stats.OptimizedSize, stats.OriginalSize)
	assert.NotEmpty(t, stats.Applied)
}

func TestRun_RemovesAddZeroIdentity(t *testing.T) {
	p := compile(t, `let x = 1; print x + 0;`)
	out, _ := optimizer.Run(p)

	for i := 0; i < len(out.Bytecode); i++ {
		op := compiler.Opcode(out.Bytecode[i])
		if op == compiler.PUSH {
			assert.NotEqual(t, 0, out.Bytecode[i+1], "PUSH 0;ADD should have been eliminated")
		}
		i += compiler.Arity(op)
	}
}

func TestRun_DeadCodeAfterReturnIsDropped(t *testing.T) {
	p := compile(t, `fn f() { return 1; print 99; } print f();`)
	out, stats := optimizer.Run(p)
	assert.Less(t, len(out.Bytecode), len(p.Bytecode))
	assert.NotEmpty(t, stats.Applied)

	for i := 0; i < len(out.Bytecode); i++ {
		op := compiler.Opcode(out.Bytecode[i])
		if op == compiler.PUSH && out.Bytecode[i+1] == 99 {
			t.Fatalf("unreachable PUSH 99 survived dead code elimination")
		}
		i += compiler.Arity(op)
	}
}

func TestRun_PreservesFunctionMapAddresses(t *testing.T) {
	p := compile(t, `export fn add(a, b) { return a + b; } print add(1, 2);`)
	out, _ := optimizer.Run(p)

	addr, ok := out.FunctionMap.Get("add")
	require.True(t, ok)
	require.GreaterOrEqual(t, addr, 0)
	require.Less(t, addr, len(out.Bytecode))

	exported, ok := out.ExportMap.Get("add")
	require.True(t, ok)
	assert.Equal(t, addr, exported)
}

func TestRun_PreservesRelocations(t *testing.T) {
	p := compile(t, `import add from mathlib; print add(1, 2);`)
	out, _ := optimizer.Run(p)
	require.Len(t, out.Relocations, 1)
	assert.Equal(t, "add", out.Relocations[0].Name)
	off := out.Relocations[0].OperandOffset
	require.Less(t, off, len(out.Bytecode))
	assert.Equal(t, int(compiler.CALL), out.Bytecode[off-1])
}

func TestRun_ProgramStillEndsInHalt(t *testing.T) {
	p := compile(t, `let x = 1 * 1; print x;`)
	out, _ := optimizer.Run(p)
	require.NotEmpty(t, out.Bytecode)
	assert.Equal(t, int(compiler.HALT), out.Bytecode[len(out.Bytecode)-1])
}
