package linker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/linker"
	"github.com/mira-lang/tvm/lang/machine"
	"github.com/mira-lang/tvm/lang/parser"
)

func compileModule(t *testing.T, name, src string) linker.Module {
	t.Helper()
	prog, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	return linker.Module{Name: name, Program: out}
}

// In every test that runs the linked image, the module with the real
// top-level statements is listed first: the VM always starts at address 0,
// and that module's own HALT is what stops execution, so a pure-library
// module's trailing (and otherwise unreachable) top-level wrapper is never
// in the way.

func TestLink_TwoModulesResolveCrossModuleCall(t *testing.T) {
	mathMod := compileModule(t, "mathlib", `export fn add(a, b) { return a + b; }`)
	mainMod := compileModule(t, "main", `import add from mathlib; print add(2, 3);`)

	res := linker.Link([]linker.Module{mainMod, mathMod})
	require.Empty(t, res.Errors)
	require.NotEmpty(t, res.Bytecode)

	_, ok := res.SymbolTable.Get("mathlib.add")
	assert.True(t, ok)

	vm := machine.New(res.Bytecode)
	require.NoError(t, vm.Run())
	assert.Equal(t, []int{5}, vm.Output())
}

func TestLink_ExportResolutionIsOrderIndependent(t *testing.T) {
	mathMod := compileModule(t, "mathlib", `export fn add(a, b) { return a + b; }`)
	mainMod := compileModule(t, "main", `import add from mathlib; print add(2, 3);`)

	// Export promotion runs as its own pass before any relocation is
	// resolved, so it must not matter that mathlib's export is registered
	// before main's import site is visited.
	res := linker.Link([]linker.Module{mathMod, mainMod})
	assert.Empty(t, res.Errors)
	_, ok := res.SymbolTable.Get("mathlib.add")
	assert.True(t, ok)
}

func TestLink_MissingModuleIsError(t *testing.T) {
	mainMod := compileModule(t, "main", `import add from mathlib; print add(2, 3);`)
	res := linker.Link([]linker.Module{mainMod})
	assert.NotEmpty(t, res.Errors)
}

func TestLink_SymbolNotExportedIsError(t *testing.T) {
	mathMod := compileModule(t, "mathlib", `fn add(a, b) { return a + b; }`) // not exported
	mainMod := compileModule(t, "main", `import add from mathlib; print add(2, 3);`)
	res := linker.Link([]linker.Module{mainMod, mathMod})
	assert.NotEmpty(t, res.Errors)
}

func TestLink_InternalCallsRebased(t *testing.T) {
	pad := compileModule(t, "pad", `export fn unused() { return 0; }`) // occupies base addresses before solo
	mod := compileModule(t, "solo", `fn double(x) { return x + x; } print double(21);`)

	base := len(pad.Program.Bytecode)
	localAddr, ok := mod.Program.FunctionMap.Get("double")
	require.True(t, ok)
	wantTarget := base + localAddr

	res := linker.Link([]linker.Module{pad, mod})
	require.Empty(t, res.Errors)

	var sawRebasedCall bool
	for i := base; i < len(res.Bytecode); i++ {
		op := compiler.Opcode(res.Bytecode[i])
		if op == compiler.CALL && res.Bytecode[i+1] == wantTarget {
			sawRebasedCall = true
		}
		i += compiler.Arity(op)
	}
	assert.True(t, sawRebasedCall, "expected a CALL targeting the rebased address of solo.double")
}

func TestLink_BytecodeLengthIsSumOfModules(t *testing.T) {
	a := compileModule(t, "a", `print 1;`)
	b := compileModule(t, "b", `print 2;`)
	res := linker.Link([]linker.Module{a, b})
	require.Empty(t, res.Errors)
	assert.Equal(t, len(a.Program.Bytecode)+len(b.Program.Bytecode), len(res.Bytecode))
}
