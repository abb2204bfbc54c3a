// Package machine implements the stack-based virtual machine: a flat
// global memory array, a bump-allocated byte heap, an operand stack, a call
// stack of frames, a try stack for exceptions, and the single-threaded,
// cooperatively-suspending execution loop the debugger drives.
package machine

import (
	"encoding/binary"

	"github.com/mira-lang/tvm/lang/compiler"
)

const (
	// DefaultMemorySize is the size of the global/locals memory array.
	DefaultMemorySize = 4096
	// DefaultHeapSize is the size in bytes of the heap region.
	DefaultHeapSize = 1 << 16
	// DefaultMaxStackSize bounds the operand stack.
	DefaultMaxStackSize = 4096
	// FrameWindow (K) is the number of memory cells reserved per call-stack
	// depth for locals: frameBase = depth * FrameWindow.
	FrameWindow = 16
	// DefaultMaxSteps is the instruction-count fuse for a single
	// un-suspended execution slice.
	DefaultMaxSteps = 10_000_000
)

// VM holds every piece of mutable state belonging to one execution: all of
// it is owned by this instance alone, mutated only from Run or from
// debugger commands issued between calls to Run. Nothing here is safe to
// share across goroutines.
type VM struct {
	Bytecode []int

	MemorySize   int
	HeapSize     int
	MaxStackSize int
	MaxSteps     int

	Debug             bool
	PauseOnException  bool
	StepCallback      func(vm *VM)

	memory    []int
	heap      []byte
	heapPtr   int
	stack     []int
	callStack []CallFrame
	tryStack  []TryFrame
	pc        int
	input     []int
	output    []int
	trace     []TraceEntry

	breakpoints map[int]bool

	running  bool
	started  bool
	paused   bool
	resuming bool
	reason   SuspendReason
	lastErr  *RuntimeError

	mode        stepMode
	targetDepth int

	steps uint64
}

// SuspendReason explains why Run returned without the program halting.
type SuspendReason int

const (
	NotSuspended SuspendReason = iota
	SuspendBreakpoint
	SuspendStep
	SuspendException
)

// TraceEntry records one executed instruction, appended in debug mode only.
type TraceEntry struct {
	PC int
	Op compiler.Opcode
}

type stepMode int

const (
	modeRun stepMode = iota
	modeStepInto
	modeStepOver
	modeStepOut
)

// New builds a VM over bytecode with default resource limits; callers may
// adjust the exported fields before the first call to Run.
func New(bytecode []int) *VM {
	return &VM{
		Bytecode:     bytecode,
		MemorySize:   DefaultMemorySize,
		HeapSize:     DefaultHeapSize,
		MaxStackSize: DefaultMaxStackSize,
		MaxSteps:     DefaultMaxSteps,
		breakpoints:  make(map[int]bool),
	}
}

// SetInput replaces the VM's input queue, consumed left to right by READ.
func (vm *VM) SetInput(values []int) {
	vm.input = append([]int(nil), values...)
}

// Output returns the output log accumulated so far.
func (vm *VM) Output() []int { return append([]int(nil), vm.output...) }

// Trace returns the execution trace accumulated so far (debug mode only).
func (vm *VM) Trace() []TraceEntry { return append([]TraceEntry(nil), vm.trace...) }

// PC returns the current program counter.
func (vm *VM) PC() int { return vm.pc }

// Halted reports whether the program has run to completion (HALT
// executed, or a runtime error stopped it).
func (vm *VM) Halted() bool { return vm.started && !vm.running && !vm.paused }

// Paused reports whether the VM is suspended awaiting a debugger command.
func (vm *VM) Paused() bool { return vm.paused }

// SuspendReasonValue reports why the VM is currently paused.
func (vm *VM) SuspendReasonValue() SuspendReason { return vm.reason }

// LastError returns the error that caused the most recent suspension due
// to an uncaught exception, if any.
func (vm *VM) LastError() *RuntimeError { return vm.lastErr }

// StackTop returns the value on top of the operand stack, for inspection
// between Run calls (e.g. by the debugger or tests).
func (vm *VM) StackTop() (int, bool) {
	if len(vm.stack) == 0 {
		return 0, false
	}
	return vm.stack[len(vm.stack)-1], true
}

// CallDepth returns the number of active call frames.
func (vm *VM) CallDepth() int { return len(vm.callStack) }

// Memory returns the word at addr in the global/locals memory array.
func (vm *VM) Memory(addr int) (int, bool) {
	if addr < 0 || addr >= len(vm.memory) {
		return 0, false
	}
	return vm.memory[addr], true
}

func (vm *VM) init() {
	if vm.started {
		return
	}
	vm.started = true
	vm.running = true
	if vm.MemorySize <= 0 {
		vm.MemorySize = DefaultMemorySize
	}
	if vm.HeapSize <= 0 {
		vm.HeapSize = DefaultHeapSize
	}
	if vm.MaxStackSize <= 0 {
		vm.MaxStackSize = DefaultMaxStackSize
	}
	if vm.MaxSteps <= 0 {
		vm.MaxSteps = DefaultMaxSteps
	}
	vm.memory = make([]int, vm.MemorySize)
	vm.heap = make([]byte, vm.HeapSize)
	vm.pc = 0
}

// Run executes until the program halts, a breakpoint or step target is
// reached, an uncaught exception suspends under pauseOnException, or a
// runtime error occurs. Calling Run again after a suspension resumes
// exactly where execution left off: pc, stacks, memory and heap are all
// untouched by suspension itself.
func (vm *VM) Run() error {
	vm.init()
	vm.paused = false
	vm.reason = NotSuspended
	vm.steps = 0
	first := true

	for vm.running {
		if vm.Debug && !(first && vm.resuming) {
			if vm.breakpoints[vm.pc] {
				vm.pauseAt(SuspendBreakpoint)
				return nil
			}
		}
		first = false
		vm.resuming = false

		if vm.Debug {
			op := compiler.Opcode(vm.peekOpcode())
			vm.trace = append(vm.trace, TraceEntry{PC: vm.pc, Op: op})
			if vm.StepCallback != nil {
				vm.StepCallback(vm)
			}
		}

		err := vm.step()
		if err != nil {
			if rerr, ok := err.(*RuntimeError); ok && rerr.Uncaught && vm.Debug && vm.PauseOnException {
				vm.lastErr = rerr
				vm.pauseAt(SuspendException)
				return nil
			}
			vm.running = false
			return err
		}

		vm.steps++
		if vm.steps > uint64(vm.MaxSteps) {
			vm.running = false
			return newRuntimeError(vm.pc, "?", "instruction-count fuse tripped after %d steps", vm.steps)
		}

		if vm.Debug && vm.applyStepMode() {
			vm.pauseAt(SuspendStep)
			return nil
		}
	}
	return nil
}

func (vm *VM) pauseAt(reason SuspendReason) {
	vm.paused = true
	vm.reason = reason
}

func (vm *VM) peekOpcode() int {
	if vm.pc < 0 || vm.pc >= len(vm.Bytecode) {
		return int(compiler.HALT)
	}
	return vm.Bytecode[vm.pc]
}

// step decodes and executes exactly one instruction, advancing pc past its
// operands unless the instruction itself assigns pc (branches, calls,
// returns, throws).
func (vm *VM) step() error {
	if vm.pc < 0 || vm.pc >= len(vm.Bytecode) {
		return newRuntimeError(vm.pc, "?", "program counter out of range")
	}
	op := compiler.Opcode(vm.Bytecode[vm.pc])
	if !compiler.IsValid(op) {
		return newRuntimeError(vm.pc, "?", "unknown opcode %d", vm.Bytecode[vm.pc])
	}
	arity := compiler.Arity(op)
	if vm.pc+arity >= len(vm.Bytecode) {
		return newRuntimeError(vm.pc, op.String(), "truncated instruction")
	}

	switch op {
	case compiler.HALT:
		vm.running = false
		vm.pc++

	case compiler.PUSH:
		if err := vm.push(vm.Bytecode[vm.pc+1]); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.ADD, compiler.SUB, compiler.MUL:
		b, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		a, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		var r int
		switch op {
		case compiler.ADD:
			r = a + b
		case compiler.SUB:
			r = a - b
		case compiler.MUL:
			r = a * b
		}
		if err := vm.push(r); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc++

	case compiler.PRINT:
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		vm.output = append(vm.output, v)
		vm.pc++

	case compiler.JMP:
		target := vm.Bytecode[vm.pc+1]
		if err := vm.checkTarget(target); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc = target

	case compiler.JMP_IF_ZERO, compiler.JMP_IF_NEG:
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		target := vm.Bytecode[vm.pc+1]
		take := (op == compiler.JMP_IF_ZERO && v == 0) || (op == compiler.JMP_IF_NEG && v < 0)
		if take {
			if err := vm.checkTarget(target); err != nil {
				return vm.errAt(op, err)
			}
			vm.pc = target
		} else {
			vm.pc += 2
		}

	case compiler.LOAD:
		addr := vm.Bytecode[vm.pc+1]
		v, err := vm.loadMemory(addr)
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.push(v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.STORE:
		addr := vm.Bytecode[vm.pc+1]
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.storeMemory(addr, v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.READ:
		if len(vm.input) == 0 {
			return vm.errAt(op, errEmptyInput)
		}
		v := vm.input[0]
		vm.input = vm.input[1:]
		if err := vm.push(v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc++

	case compiler.CALL:
		target := vm.Bytecode[vm.pc+1]
		if err := vm.checkTarget(target); err != nil {
			return vm.errAt(op, err)
		}
		depth := len(vm.callStack) + 1
		vm.callStack = append(vm.callStack, CallFrame{
			ReturnAddress:      vm.pc + 2,
			StackPointerAtCall: len(vm.stack),
			FrameBase:          depth * FrameWindow,
		})
		vm.pc = target

	case compiler.RET:
		if len(vm.callStack) == 0 {
			return vm.errAt(op, errNoFrame)
		}
		frame := vm.callStack[len(vm.callStack)-1]
		vm.callStack = vm.callStack[:len(vm.callStack)-1]
		vm.pc = frame.ReturnAddress

	case compiler.LOAD_LOCAL:
		offset := vm.Bytecode[vm.pc+1]
		v, err := vm.loadLocal(offset)
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.push(v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.STORE_LOCAL:
		offset := vm.Bytecode[vm.pc+1]
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.storeLocal(offset, v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.ENTER_TRY:
		handler := vm.Bytecode[vm.pc+1]
		vm.tryStack = append(vm.tryStack, TryFrame{
			EnterAddress:        vm.pc,
			Handler:             handler,
			StackPointerAtEnter: len(vm.stack),
		})
		vm.pc += 2

	case compiler.LEAVE_TRY:
		if len(vm.tryStack) == 0 {
			return vm.errAt(op, errNoTry)
		}
		vm.tryStack = vm.tryStack[:len(vm.tryStack)-1]
		vm.pc++

	case compiler.THROW:
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		return vm.throw(v)

	case compiler.MALLOC:
		size, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		addr, err := vm.malloc(size)
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.push(addr); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc++

	case compiler.LOAD8, compiler.LOAD32:
		addr := vm.Bytecode[vm.pc+1]
		v, err := vm.loadHeap(op, addr)
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.push(v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.STORE8, compiler.STORE32:
		addr := vm.Bytecode[vm.pc+1]
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.storeHeap(op, addr, v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc += 2

	case compiler.LOAD32_STACK:
		addr, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		v, err := vm.loadHeap(compiler.LOAD32, addr)
		if err != nil {
			return vm.errAt(op, err)
		}
		if err := vm.push(v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc++

	case compiler.STORE32_STACK, compiler.STORE8_STACK:
		addr, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		v, err := vm.pop()
		if err != nil {
			return vm.errAt(op, err)
		}
		kind := compiler.STORE32
		if op == compiler.STORE8_STACK {
			kind = compiler.STORE8
		}
		if err := vm.storeHeap(kind, addr, v); err != nil {
			return vm.errAt(op, err)
		}
		vm.pc++

	default:
		return vm.errAt(op, errUnknownOpcode)
	}

	return nil
}

func (vm *VM) errAt(op compiler.Opcode, err error) error {
	if rerr, ok := err.(*RuntimeError); ok {
		rerr.PC = vm.pc
		rerr.Op = op.String()
		return rerr
	}
	return newRuntimeError(vm.pc, op.String(), "%s", err)
}

func (vm *VM) checkTarget(target int) error {
	if target < 0 || target >= len(vm.Bytecode) {
		return errBadTarget
	}
	return nil
}

func (vm *VM) push(v int) error {
	if len(vm.stack) >= vm.MaxStackSize {
		return errStackOverflow
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (int, error) {
	if len(vm.stack) == 0 {
		return 0, errStackUnderflow
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) loadMemory(addr int) (int, error) {
	if addr < 0 || addr >= len(vm.memory) {
		return 0, errBadMemory
	}
	return vm.memory[addr], nil
}

func (vm *VM) storeMemory(addr, v int) error {
	if addr < 0 || addr >= len(vm.memory) {
		return errBadMemory
	}
	vm.memory[addr] = v
	return nil
}

func (vm *VM) loadLocal(offset int) (int, error) {
	if len(vm.callStack) == 0 {
		return 0, errNoFrame
	}
	addr := vm.callStack[len(vm.callStack)-1].FrameBase + offset
	return vm.loadMemory(addr)
}

func (vm *VM) storeLocal(offset, v int) error {
	if len(vm.callStack) == 0 {
		return errNoFrame
	}
	addr := vm.callStack[len(vm.callStack)-1].FrameBase + offset
	return vm.storeMemory(addr, v)
}

func (vm *VM) malloc(size int) (int, error) {
	if size < 0 {
		return 0, errBadHeapSize
	}
	if vm.heapPtr+size > len(vm.heap) {
		return 0, errHeapExhausted
	}
	addr := vm.heapPtr
	for i := addr; i < addr+size; i++ {
		vm.heap[i] = 0
	}
	vm.heapPtr += size
	return addr, nil
}

func (vm *VM) loadHeap(op compiler.Opcode, addr int) (int, error) {
	switch op {
	case compiler.LOAD8:
		if addr < 0 || addr >= len(vm.heap) {
			return 0, errBadHeap
		}
		return int(vm.heap[addr]), nil
	case compiler.LOAD32:
		if addr < 0 || addr+4 > len(vm.heap) {
			return 0, errBadHeap
		}
		u := binary.LittleEndian.Uint32(vm.heap[addr : addr+4])
		return int(int32(u)), nil
	default:
		return 0, errUnknownOpcode
	}
}

func (vm *VM) storeHeap(op compiler.Opcode, addr, v int) error {
	switch op {
	case compiler.STORE8:
		if addr < 0 || addr >= len(vm.heap) {
			return errBadHeap
		}
		vm.heap[addr] = byte(v)
		return nil
	case compiler.STORE32:
		if addr < 0 || addr+4 > len(vm.heap) {
			return errBadHeap
		}
		binary.LittleEndian.PutUint32(vm.heap[addr:addr+4], uint32(int32(v)))
		return nil
	default:
		return errUnknownOpcode
	}
}

// throw implements THROW's unwinding: if no try block is active, every
// call frame unwinds (truncating the operand stack to each frame's
// recorded pointer) and the exception fails as uncaught; otherwise the
// innermost try block (and any nested strictly inside it) is popped, the
// stack truncates to its recorded pointer, pc jumps to the handler, and the
// exception value is pushed back for the handler prologue to bind.
func (vm *VM) throw(value int) error {
	if len(vm.tryStack) == 0 {
		for len(vm.callStack) > 0 {
			frame := vm.callStack[len(vm.callStack)-1]
			vm.callStack = vm.callStack[:len(vm.callStack)-1]
			if frame.StackPointerAtCall <= len(vm.stack) {
				vm.stack = vm.stack[:frame.StackPointerAtCall]
			}
		}
		return &RuntimeError{PC: vm.pc, Op: compiler.THROW.String(), Msg: "uncaught exception", Uncaught: true}
	}

	handlerFrame := vm.tryStack[len(vm.tryStack)-1]
	vm.tryStack = vm.tryStack[:len(vm.tryStack)-1]
	for len(vm.tryStack) > 0 && vm.tryStack[len(vm.tryStack)-1].EnterAddress >= handlerFrame.EnterAddress {
		vm.tryStack = vm.tryStack[:len(vm.tryStack)-1]
	}

	if handlerFrame.StackPointerAtEnter <= len(vm.stack) {
		vm.stack = vm.stack[:handlerFrame.StackPointerAtEnter]
	}
	vm.pc = handlerFrame.Handler
	if err := vm.push(value); err != nil {
		return vm.errAt(compiler.THROW, err)
	}
	return nil
}

// applyStepMode runs the §4.7 step-mode transition after one instruction
// has executed, reporting whether the VM should now pause.
func (vm *VM) applyStepMode() bool {
	switch vm.mode {
	case modeStepInto:
		return true
	case modeStepOver:
		return len(vm.callStack) <= vm.targetDepth
	case modeStepOut:
		return len(vm.callStack) < vm.targetDepth
	default:
		return false
	}
}
