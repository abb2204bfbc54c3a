package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mira-lang/tvm/lang/compiler"
	"github.com/mira-lang/tvm/lang/machine"
	"github.com/mira-lang/tvm/lang/optimizer"
	"github.com/mira-lang/tvm/lang/parser"
)

func run(t *testing.T, src string) *machine.VM {
	t.Helper()
	prog, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	vm := machine.New(out.Bytecode)
	require.NoError(t, vm.Run())
	return vm
}

func TestVM_SimpleArithmetic(t *testing.T) {
	vm := run(t, `print 5 + 10;`)
	assert.Equal(t, []int{15}, vm.Output())
	assert.True(t, vm.Halted())
}

func TestVM_WhileLoop(t *testing.T) {
	vm := run(t, `let i = 0; while (i < 3) { print i; i = i + 1; }`)
	assert.Equal(t, []int{0, 1, 2}, vm.Output())
}

func TestVM_RecursiveFactorial(t *testing.T) {
	vm := run(t, `
		fn fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		print fact(5);
	`)
	assert.Equal(t, []int{120}, vm.Output())
}

func TestVM_ArrayLiteralAndAccess(t *testing.T) {
	vm := run(t, `let a = [10, 20, 30]; print a[0]; print a[2];`)
	assert.Equal(t, []int{10, 30}, vm.Output())
}

func TestVM_ArrayAssignment(t *testing.T) {
	vm := run(t, `let a = [1, 2, 3]; a[1] = 99; print a[1];`)
	assert.Equal(t, []int{99}, vm.Output())
}

func TestVM_TryCatch(t *testing.T) {
	vm := run(t, `
		let x = 0;
		try {
			throw 7;
		} catch (e) {
			x = e;
		}
		print x;
	`)
	assert.Equal(t, []int{7}, vm.Output())
}

func TestVM_UncaughtThrowIsError(t *testing.T) {
	prog, err := parser.Parse([]byte(`throw 1;`))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	vm := machine.New(out.Bytecode)
	err = vm.Run()
	require.Error(t, err)
	rerr, ok := err.(*machine.RuntimeError)
	require.True(t, ok)
	assert.True(t, rerr.Uncaught)
}

func TestVM_ReadConsumesInputInOrder(t *testing.T) {
	prog, err := parser.Parse([]byte(`read x; read y; print x; print y;`))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	vm := machine.New(out.Bytecode)
	vm.SetInput([]int{42, 7})
	require.NoError(t, vm.Run())
	assert.Equal(t, []int{42, 7}, vm.Output())
}

func TestVM_DivisionOperatorRejectedAtCompileTime(t *testing.T) {
	prog, err := parser.Parse([]byte(`print 1 / 0;`))
	require.NoError(t, err)
	_, err = compiler.Compile(prog)
	assert.Error(t, err)
}

func TestVM_StackUnderflowIsRuntimeError(t *testing.T) {
	vm := machine.New([]int{int(compiler.ADD), int(compiler.HALT)})
	err := vm.Run()
	require.Error(t, err)
	_, ok := err.(*machine.RuntimeError)
	assert.True(t, ok)
}

func TestVM_OptimizedProgramProducesSameOutput(t *testing.T) {
	prog, err := parser.Parse([]byte(`
		fn fact(n) {
			if (n <= 1) { return 1; }
			return n * fact(n - 1);
		}
		print fact(5);
	`))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)

	optOut, _ := optimizer.Run(out)

	vm1 := machine.New(out.Bytecode)
	require.NoError(t, vm1.Run())
	vm2 := machine.New(optOut.Bytecode)
	require.NoError(t, vm2.Run())
	assert.Equal(t, vm1.Output(), vm2.Output())
}

func TestVM_MaxStepsFuseStopsRunaway(t *testing.T) {
	// while (1) {} never sets the condition false: the step fuse must
	// eventually fail rather than loop forever.
	prog, err := parser.Parse([]byte(`while (1) { let x = 1; }`))
	require.NoError(t, err)
	out, err := compiler.Compile(prog)
	require.NoError(t, err)
	vm := machine.New(out.Bytecode)
	vm.MaxSteps = 1000
	err = vm.Run()
	assert.Error(t, err)
}

func TestVM_StringLiteralIsFirstHeapAllocation(t *testing.T) {
	vm := run(t, `let s = "hi"; print s;`)
	// s is a heap address; the string is the program's first allocation and
	// the heap pointer starts at 0, so the printed pointer is 0.
	require.Len(t, vm.Output(), 1)
	assert.Equal(t, 0, vm.Output()[0])
}
