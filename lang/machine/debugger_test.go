package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/machine"
	"github.com/mira-lang/tvm/lang/parser"
)

func compileProgram(t *testing.T, src string) *compiler.Program {
	t.Helper()
	prog, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	return out
}

// findPrintAddr locates the address of the sole PRINT instruction, used to
// plant a breakpoint on the statement under test.
func findPrintAddr(t *testing.T, code []int) int {
	t.Helper()
	for i := 0; i < len(code); i++ {
		op := compiler.Opcode(code[i])
		if op == compiler.PRINT {
			return i
		}
		i += compiler.Arity(op)
	}
	t.Fatal("no PRINT instruction found")
	return -1
}

func TestDebugger_BreakpointSuspendsBeforePrint(t *testing.T) {
	prog := compileProgram(t, `print 5 + 10;`)
	vm := machine.New(prog.Bytecode)
	dbg := machine.NewDebugger(vm, nil)

	addr := findPrintAddr(t, prog.Bytecode)
	dbg.SetBreakpoint(addr)

	require.NoError(t, vm.Run())
	require.True(t, vm.Paused())
	assert.Equal(t, machine.SuspendBreakpoint, vm.SuspendReasonValue())
	assert.Equal(t, addr, vm.PC())

	top, ok := vm.StackTop()
	require.True(t, ok)
	assert.Equal(t, 15, top)
	assert.Empty(t, vm.Output())
}

func TestDebugger_ContinueResumesToCompletion(t *testing.T) {
	prog := compileProgram(t, `print 5 + 10;`)
	vm := machine.New(prog.Bytecode)
	dbg := machine.NewDebugger(vm, nil)
	dbg.SetBreakpoint(findPrintAddr(t, prog.Bytecode))

	require.NoError(t, vm.Run())
	require.True(t, vm.Paused())

	require.NoError(t, dbg.Continue())
	assert.True(t, vm.Halted())
	assert.Equal(t, []int{15}, vm.Output())
}

func TestDebugger_StepIntoAdvancesOneInstruction(t *testing.T) {
	prog := compileProgram(t, `print 1; print 2;`)
	vm := machine.New(prog.Bytecode)
	dbg := machine.NewDebugger(vm, nil)
	dbg.SetBreakpoint(0)

	require.NoError(t, vm.Run())
	require.True(t, vm.Paused())
	pcBefore := vm.PC()

	require.NoError(t, dbg.StepInto())
	require.True(t, vm.Paused())
	assert.NotEqual(t, pcBefore, vm.PC())
}

func TestDebugger_ToggleBreakpoint(t *testing.T) {
	vm := machine.New([]int{int(compiler.HALT)})
	dbg := machine.NewDebugger(vm, nil)
	dbg.ToggleBreakpoint(0)
	assert.Contains(t, dbg.Breakpoints(), 0)
	dbg.ToggleBreakpoint(0)
	assert.NotContains(t, dbg.Breakpoints(), 0)
}

func TestDebugger_WatchByName(t *testing.T) {
	prog := compileProgram(t, `let x = 42; print x;`)
	vm := machine.New(prog.Bytecode)
	names := make(map[string]int)
	prog.VariableMap.Each(func(name string, addr int) { names[name] = addr })
	dbg := machine.NewDebugger(vm, names)

	require.NoError(t, dbg.AddWatch(machine.Watch{Name: "x"}))
	dbg.SetBreakpoint(findPrintAddr(t, prog.Bytecode))
	require.NoError(t, vm.Run())
	require.True(t, vm.Paused())

	results := dbg.Watches()
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
	assert.Equal(t, 42, results[0].Value)
}

func TestDebugger_WatchUnknownNameIsError(t *testing.T) {
	vm := machine.New([]int{int(compiler.HALT)})
	dbg := machine.NewDebugger(vm, map[string]int{"y": 0})
	err := dbg.AddWatch(machine.Watch{Name: "missing"})
	assert.Error(t, err)
}

func TestDebugger_PauseOnExceptionSuspendsInsteadOfFailing(t *testing.T) {
	prog := compileProgram(t, `throw 9;`)
	vm := machine.New(prog.Bytecode)
	dbg := machine.NewDebugger(vm, nil)
	dbg.SetPauseOnException(true)

	require.NoError(t, vm.Run())
	require.True(t, vm.Paused())
	assert.Equal(t, machine.SuspendException, vm.SuspendReasonValue())
	require.NotNil(t, vm.LastError())
	assert.True(t, vm.LastError().Uncaught)
}
