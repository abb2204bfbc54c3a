package machine

import (
	"fmt"

	"github.com/mira-lang/tvm/lang/compiler"
)

// Debugger wraps a VM with the breakpoint, watch and step-mode controls of
// the controller surface. It never mutates VM state itself except through
// the VM's own Run loop and the stepping fields Run reads each iteration —
// watches are read-only against whatever state Run last left behind.
type Debugger struct {
	vm *VM

	watches []Watch
	names   map[string]int // variable name -> global address, for name watches
}

// Watch observes either a named global variable or a raw memory address.
type Watch struct {
	Name      string
	IsMemory  bool
	Address   int
}

// WatchResult is one watch's value as of the last suspension.
type WatchResult struct {
	Watch Watch
	Value int
	Valid bool
}

// NewDebugger attaches a debugger to vm. names, if non-nil, resolves
// variable-by-name watches (typically a compiled program's VariableMap
// flattened to a plain map).
func NewDebugger(vm *VM, names map[string]int) *Debugger {
	vm.Debug = true
	return &Debugger{vm: vm, names: names}
}

// VM returns the wrapped machine.
func (d *Debugger) VM() *VM { return d.vm }

// SetBreakpoint, ClearBreakpoint and ToggleBreakpoint manage the
// address-indexed breakpoint set.
func (d *Debugger) SetBreakpoint(addr int)    { d.vm.breakpoints[addr] = true }
func (d *Debugger) ClearBreakpoint(addr int)  { delete(d.vm.breakpoints, addr) }
func (d *Debugger) ToggleBreakpoint(addr int) {
	if d.vm.breakpoints[addr] {
		delete(d.vm.breakpoints, addr)
	} else {
		d.vm.breakpoints[addr] = true
	}
}

// Breakpoints returns the currently enabled breakpoint addresses.
func (d *Debugger) Breakpoints() []int {
	out := make([]int, 0, len(d.vm.breakpoints))
	for addr, on := range d.vm.breakpoints {
		if on {
			out = append(out, addr)
		}
	}
	return out
}

// AddWatch registers a watch by variable name (resolved through the
// debugger's name table) or by raw memory address.
func (d *Debugger) AddWatch(w Watch) error {
	if !w.IsMemory {
		if d.names == nil {
			return fmt.Errorf("debugger: no variable name table attached")
		}
		addr, ok := d.names[w.Name]
		if !ok {
			return fmt.Errorf("debugger: unknown variable %q", w.Name)
		}
		w.Address = addr
	}
	d.watches = append(d.watches, w)
	return nil
}

// RemoveWatch drops the watch at index i.
func (d *Debugger) RemoveWatch(i int) {
	if i < 0 || i >= len(d.watches) {
		return
	}
	d.watches = append(d.watches[:i], d.watches[i+1:]...)
}

// Watches returns the current watch results, evaluated on demand against
// the VM's current memory; evaluating a watch never mutates the VM.
func (d *Debugger) Watches() []WatchResult {
	out := make([]WatchResult, 0, len(d.watches))
	for _, w := range d.watches {
		v, ok := d.vm.Memory(w.Address)
		out = append(out, WatchResult{Watch: w, Value: v, Valid: ok})
	}
	return out
}

// SetPauseOnException toggles whether an uncaught throw suspends execution
// (in debug mode) instead of failing outright.
func (d *Debugger) SetPauseOnException(on bool) { d.vm.PauseOnException = on }

// Continue resumes in run mode: only breakpoints and uncaught exceptions
// (if pauseOnException is set) suspend execution again.
func (d *Debugger) Continue() error {
	d.vm.mode = modeRun
	d.vm.resuming = true
	return d.vm.Run()
}

// StepInto resumes and pauses after exactly one instruction.
func (d *Debugger) StepInto() error {
	d.vm.mode = modeStepInto
	d.vm.resuming = true
	return d.vm.Run()
}

// StepOver resumes; if the next instruction is a call, pausing is deferred
// until the call stack returns to its pre-call depth, otherwise this
// degenerates to StepInto.
func (d *Debugger) StepOver() error {
	if d.vm.pc >= 0 && d.vm.pc < len(d.vm.Bytecode) && compiler.Opcode(d.vm.Bytecode[d.vm.pc]) == compiler.CALL {
		d.vm.mode = modeStepOver
		d.vm.targetDepth = len(d.vm.callStack)
	} else {
		d.vm.mode = modeStepInto
	}
	d.vm.resuming = true
	return d.vm.Run()
}

// StepOut resumes until the call stack depth drops below its current
// value.
func (d *Debugger) StepOut() error {
	d.vm.mode = modeStepOut
	d.vm.targetDepth = len(d.vm.callStack)
	d.vm.resuming = true
	return d.vm.Run()
}
