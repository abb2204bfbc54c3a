package compiler

import (
	"fmt"
	"strings"

	"github.com/mira-lang/tvm/lang/ast"
)

// scratchSlot is the designated global memory cell used to discard the
// value left behind by an expression statement. The instruction set has no
// explicit pop, so a store to this sentinel cell stands in for one; it must
// never be read back as a variable.
const scratchSlot = 255

// Error describes a single codegen failure: an undefined name, an
// unsupported operator, or a malformed tree shape.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// ErrorList collects every Error produced during a compile.
type ErrorList []*Error

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (and %d more errors)", el[0], len(el)-1)
	return b.String()
}

// label is a forward- or backward-reference fixup site. Unlike the
// reference generator's approach of scanning emitted bytecode for operand
// values equal to a label id, each label here tracks its own pending
// operand offsets directly, so there is never a moment where a
// not-yet-patched label id could be confused with a real address.
type label struct {
	resolved bool
	addr     int
	fixups   []int // bytecode indices of pending operand words
}

type scope struct {
	locals    map[string]int
	nextLocal int
}

// Compiler walks a parsed program and emits its bytecode.
type Compiler struct {
	prog *Program

	nextGlobal int
	scope      *scope // nil at top level

	funcLabels  map[string]*label // pending address of every top-level function
	funcArity   map[string]int
	imported    map[string]string // imported local name -> module name

	heapDepth int // nesting depth of in-progress heap-literal construction

	errs ErrorList
}

// Compile lowers prog to bytecode, returning the compiled Program (with its
// variable/function/export/relocation tables) and any codegen errors.
func Compile(prog *ast.Program) (*Program, error) {
	c := &Compiler{
		prog:       newProgram(),
		funcLabels: make(map[string]*label),
		funcArity:  make(map[string]int),
		imported:   make(map[string]string),
	}

	// Pass 1: collect function definitions and import names, so call sites
	// can be classified (local vs. imported vs. undefined) regardless of
	// where in the source they appear relative to their definition.
	for _, s := range prog.Stmts {
		switch s := s.(type) {
		case *ast.FunctionDef:
			if _, dup := c.funcLabels[s.Name]; dup {
				c.errorf("duplicate function definition: %s", s.Name)
				continue
			}
			c.funcLabels[s.Name] = &label{}
			c.funcArity[s.Name] = len(s.Params)
		case *ast.Import:
			for _, name := range s.Names {
				c.imported[name] = s.ModuleName
				c.prog.Imports = append(c.prog.Imports, ImportedName{Name: name, ModuleName: s.ModuleName})
			}
		}
	}

	// Pass 2: emit an initial jump over the function bodies, then each
	// function body at successive addresses, then patch the jump and emit
	// the main-level statements.
	mainLabel := &label{}
	c.emitBranch(JMP, mainLabel)
	for _, s := range prog.Stmts {
		if fd, ok := s.(*ast.FunctionDef); ok {
			c.compileFunctionDef(fd)
		}
	}
	c.placeLabel(mainLabel)
	for _, s := range prog.Stmts {
		switch s.(type) {
		case *ast.FunctionDef, *ast.Import:
			continue // already handled in the first half of pass 2
		default:
			c.compileStmt(s)
		}
	}
	c.emit(HALT)

	if len(c.errs) > 0 {
		return c.prog, c.errs
	}
	return c.prog, nil
}

func (c *Compiler) errorf(format string, args ...any) {
	c.errs = append(c.errs, &Error{Msg: fmt.Sprintf(format, args...)})
}

// --- emission helpers ---

func (c *Compiler) emit(op Opcode, operands ...int) int {
	addr := len(c.prog.Bytecode)
	c.prog.Bytecode = append(c.prog.Bytecode, int(op))
	c.prog.Bytecode = append(c.prog.Bytecode, operands...)
	return addr
}

// emitBranch emits op followed by a single placeholder operand bound to
// lbl: if lbl is already resolved the real address is written immediately,
// otherwise the operand's position is queued in lbl's fixup list.
func (c *Compiler) emitBranch(op Opcode, lbl *label) int {
	addr := len(c.prog.Bytecode)
	c.prog.Bytecode = append(c.prog.Bytecode, int(op))
	operandOffset := len(c.prog.Bytecode)
	if lbl.resolved {
		c.prog.Bytecode = append(c.prog.Bytecode, lbl.addr)
	} else {
		c.prog.Bytecode = append(c.prog.Bytecode, 0)
		lbl.fixups = append(lbl.fixups, operandOffset)
	}
	return addr
}

// placeLabel resolves lbl to the current end-of-bytecode address and
// patches every pending fixup site recorded against it.
func (c *Compiler) placeLabel(lbl *label) {
	addr := len(c.prog.Bytecode)
	lbl.addr = addr
	lbl.resolved = true
	for _, off := range lbl.fixups {
		c.prog.Bytecode[off] = addr
	}
	lbl.fixups = nil
}

// --- variable resolution ---

func (c *Compiler) resolveVariable(name string) (isLocal bool, addr int) {
	if c.scope != nil {
		return true, c.resolveLocal(name)
	}
	return false, c.resolveGlobal(name)
}

func (c *Compiler) resolveLocal(name string) int {
	if idx, ok := c.scope.locals[name]; ok {
		return idx
	}
	idx := c.scope.nextLocal
	c.scope.nextLocal++
	c.scope.locals[name] = idx
	return idx
}

func (c *Compiler) resolveGlobal(name string) int {
	if addr, ok := c.prog.VariableMap.Get(name); ok {
		return addr
	}
	addr := c.nextGlobal
	c.nextGlobal++
	c.prog.VariableMap.Set(name, addr)
	return addr
}

// heapTemp allocates a scratch storage cell for holding an in-progress heap
// allocation's address while its contents are written. Nested literals
// (e.g. an array of arrays) get distinct cells per nesting depth so that an
// inner construction cannot clobber the address an outer one is still
// using.
func (c *Compiler) heapTemp() (store, load func()) {
	depth := c.heapDepth
	if c.scope != nil {
		name := fmt.Sprintf("$heaplit%d", depth)
		idx := c.resolveLocal(name)
		return func() { c.emit(STORE_LOCAL, idx) }, func() { c.emit(LOAD_LOCAL, idx) }
	}
	name := fmt.Sprintf("$heaplit%d", depth)
	addr := c.resolveGlobal(name)
	return func() { c.emit(STORE, addr) }, func() { c.emit(LOAD, addr) }
}

// --- function definitions ---

func (c *Compiler) compileFunctionDef(fd *ast.FunctionDef) {
	lbl := c.funcLabels[fd.Name]
	c.placeLabel(lbl)

	addr := lbl.addr
	c.prog.FunctionMap.Set(fd.Name, addr)
	if fd.Exported {
		c.prog.ExportMap.Set(fd.Name, addr)
	}

	c.scope = &scope{locals: make(map[string]int)}
	for i, p := range fd.Params {
		c.scope.locals[p] = i
	}
	c.scope.nextLocal = len(fd.Params)

	// prologue: arguments were pushed left to right, so the last one is on
	// top; storing in reverse order lands argument i in local i.
	for i := len(fd.Params) - 1; i >= 0; i-- {
		c.emit(STORE_LOCAL, i)
	}

	for _, st := range fd.Body {
		c.compileStmt(st)
	}
	// implicit fallthrough return, in case every path did not already
	// return explicitly; unreachable if every path did.
	c.emit(PUSH, 0)
	c.emit(RET)

	c.scope = nil
}

// --- statements ---

func (c *Compiler) compileStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Let:
		c.compileExpr(s.Value)
		isLocal, addr := c.resolveVariable(s.Name)
		if s.Exported {
			if c.scope != nil {
				c.errorf("cannot export %s: export is only valid for top-level declarations", s.Name)
			} else {
				c.prog.ExportMap.Set(s.Name, addr)
			}
		}
		if isLocal {
			c.emit(STORE_LOCAL, addr)
		} else {
			c.emit(STORE, addr)
		}

	case *ast.ExpressionStmt:
		c.compileExpr(s.Expr)
		c.emit(STORE, scratchSlot)

	case *ast.If:
		elseLbl := &label{}
		endLbl := &label{}
		c.compileConditionJumpToElse(s.Cond, elseLbl)
		for _, st := range s.Then {
			c.compileStmt(st)
		}
		c.emitBranch(JMP, endLbl)
		c.placeLabel(elseLbl)
		for _, st := range s.Else {
			c.compileStmt(st)
		}
		c.placeLabel(endLbl)

	case *ast.While:
		startLbl := &label{}
		exitLbl := &label{}
		c.placeLabel(startLbl)
		c.compileConditionJumpToElse(s.Cond, exitLbl)
		for _, st := range s.Body {
			c.compileStmt(st)
		}
		c.emitBranch(JMP, startLbl)
		c.placeLabel(exitLbl)

	case *ast.Print:
		c.compileExpr(s.Expr)
		c.emit(PRINT)

	case *ast.Read:
		c.emit(READ)
		isLocal, addr := c.resolveVariable(s.Var)
		if isLocal {
			c.emit(STORE_LOCAL, addr)
		} else {
			c.emit(STORE, addr)
		}

	case *ast.Return:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(PUSH, 0)
		}
		c.emit(RET)

	case *ast.Try:
		handlerLbl := &label{}
		endLbl := &label{}
		c.emitBranch(ENTER_TRY, handlerLbl)
		for _, st := range s.Body {
			c.compileStmt(st)
		}
		c.emit(LEAVE_TRY)
		c.emitBranch(JMP, endLbl)
		c.placeLabel(handlerLbl)
		if s.CatchVar != "" {
			isLocal, addr := c.resolveVariable(s.CatchVar)
			if isLocal {
				c.emit(STORE_LOCAL, addr)
			} else {
				c.emit(STORE, addr)
			}
		} else {
			c.emit(STORE, scratchSlot)
		}
		for _, st := range s.Catch {
			c.compileStmt(st)
		}
		c.placeLabel(endLbl)

	case *ast.Throw:
		c.compileExpr(s.Value)
		c.emit(THROW)

	case *ast.Export:
		// Standalone export of an already-declared name: promote its
		// existing binding (local functions cannot be exported here since
		// exports are always resolved against the module-level tables).
		if addr, ok := c.prog.FunctionMap.Get(s.Name); ok {
			c.prog.ExportMap.Set(s.Name, addr)
		} else if addr, ok := c.prog.VariableMap.Get(s.Name); ok {
			c.prog.ExportMap.Set(s.Name, addr)
		} else {
			c.errorf("cannot export undefined name: %s", s.Name)
		}

	case *ast.FunctionDef, *ast.Import:
		c.errorf("%T is only valid at the top level", s)

	default:
		c.errorf("unknown statement kind %T", s)
	}
}

// compileConditionJumpToElse emits cond and a branch to elseLbl taken
// exactly when cond is false. Comparisons are special-cased to a single
// subtract plus one conditional jump (the only two fit the instruction set
// provides being JMP_IF_ZERO and JMP_IF_NEG); operators whose natural
// subtraction order would need a jump the VM doesn't have are reassociated
// (">" and "<=" compute the right-minus-left difference) or, when the
// primitive naturally tests the condition's truth rather than its falsity
// (== < >), routed through an extra unconditional jump around a small
// then-entry label. See the codegen ABI note in SPEC_FULL.md §9.1.
func (c *Compiler) compileConditionJumpToElse(cond ast.Expr, elseLbl *label) {
	if b, ok := cond.(*ast.Binary); ok {
		switch b.Op {
		case "==":
			c.compileExpr(b.Left)
			c.compileExpr(b.Right)
			c.emit(SUB)
			thenLbl := &label{}
			c.emitBranch(JMP_IF_ZERO, thenLbl)
			c.emitBranch(JMP, elseLbl)
			c.placeLabel(thenLbl)
			return
		case "!=":
			c.compileExpr(b.Left)
			c.compileExpr(b.Right)
			c.emit(SUB)
			c.emitBranch(JMP_IF_ZERO, elseLbl)
			return
		case "<":
			c.compileExpr(b.Left)
			c.compileExpr(b.Right)
			c.emit(SUB)
			thenLbl := &label{}
			c.emitBranch(JMP_IF_NEG, thenLbl)
			c.emitBranch(JMP, elseLbl)
			c.placeLabel(thenLbl)
			return
		case ">":
			// swapped: R - L < 0  <=>  L > R
			c.compileExpr(b.Right)
			c.compileExpr(b.Left)
			c.emit(SUB)
			thenLbl := &label{}
			c.emitBranch(JMP_IF_NEG, thenLbl)
			c.emitBranch(JMP, elseLbl)
			c.placeLabel(thenLbl)
			return
		case "<=":
			// swapped: R - L < 0  <=>  L > R  <=>  not(L <= R)
			c.compileExpr(b.Right)
			c.compileExpr(b.Left)
			c.emit(SUB)
			c.emitBranch(JMP_IF_NEG, elseLbl)
			return
		case ">=":
			// L - R < 0  <=>  L < R  <=>  not(L >= R)
			c.compileExpr(b.Left)
			c.compileExpr(b.Right)
			c.emit(SUB)
			c.emitBranch(JMP_IF_NEG, elseLbl)
			return
		}
	}
	// generic truthiness: zero is false
	c.compileExpr(cond)
	c.emitBranch(JMP_IF_ZERO, elseLbl)
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

// --- expressions ---

func (c *Compiler) compileExpr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.NumberLit:
		c.emit(PUSH, int(e.Value))

	case *ast.StringLit:
		c.compileStringLit(e)

	case *ast.Identifier:
		isLocal, addr := c.resolveIdentRead(e.Name)
		if isLocal {
			c.emit(LOAD_LOCAL, addr)
		} else {
			c.emit(LOAD, addr)
		}

	case *ast.Binary:
		c.compileBinary(e)

	case *ast.Unary:
		if e.Op != "-" {
			c.errorf("unknown unary operator: %s", e.Op)
			return
		}
		c.compileExpr(e.Operand)
		c.emit(PUSH, -1)
		c.emit(MUL)

	case *ast.Assignment:
		c.compileAssignment(e)

	case *ast.Call:
		c.compileCall(e)

	case *ast.ArrayLit:
		c.compileArrayLit(e)

	case *ast.ArrayAccess:
		c.compileElemAddr(e)
		c.emit(LOAD32_STACK)

	default:
		c.errorf("unknown expression kind %T", e)
	}
}

// resolveIdentRead resolves a bare identifier used as a value: an
// identifier naming an imported function (rather than a variable) is a
// codegen error, since the instruction set has no way to load a relocated
// address as a value.
func (c *Compiler) resolveIdentRead(name string) (isLocal bool, addr int) {
	if c.scope != nil {
		if _, ok := c.scope.locals[name]; ok {
			return true, c.resolveLocal(name)
		}
	} else if _, ok := c.prog.VariableMap.Get(name); !ok {
		if _, isImport := c.imported[name]; isImport {
			c.errorf("undefined variable: %s (refers to an imported function)", name)
			return false, 0
		}
	}
	return c.resolveVariable(name)
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	if comparisonOps[e.Op] {
		// Materialize a 0/1 boolean for comparisons used as plain values
		// (outside of an if/while condition), reusing the same branch
		// primitives as control-flow sites.
		falseLbl := &label{}
		endLbl := &label{}
		c.compileConditionJumpToElse(e, falseLbl)
		c.emit(PUSH, 1)
		c.emitBranch(JMP, endLbl)
		c.placeLabel(falseLbl)
		c.emit(PUSH, 0)
		c.placeLabel(endLbl)
		return
	}

	switch e.Op {
	case "+":
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.emit(ADD)
	case "-":
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.emit(SUB)
	case "*":
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		c.emit(MUL)
	case "/":
		c.errorf("division is not supported by the virtual machine")
	default:
		c.errorf("unknown operator: %s", e.Op)
	}
}

func (c *Compiler) compileAssignment(e *ast.Assignment) {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		c.compileExpr(e.Value)
		isLocal, addr := c.resolveVariable(target.Name)
		if isLocal {
			c.emit(STORE_LOCAL, addr)
			c.emit(LOAD_LOCAL, addr)
		} else {
			c.emit(STORE, addr)
			c.emit(LOAD, addr)
		}

	case *ast.ArrayAccess:
		store, load := c.heapTemp()
		c.compileExpr(e.Value)
		store()
		load()
		c.compileElemAddr(target)
		c.emit(STORE32_STACK)
		load()

	default:
		c.errorf("invalid assignment target %T", e.Target)
	}
}

func (c *Compiler) compileCall(e *ast.Call) {
	for _, a := range e.Args {
		c.compileExpr(a)
	}
	if lbl, ok := c.funcLabels[e.Name]; ok {
		if want := c.funcArity[e.Name]; want != len(e.Args) {
			c.errorf("function %s expects %d argument(s), got %d", e.Name, want, len(e.Args))
			return
		}
		c.emitBranch(CALL, lbl)
		return
	}
	if _, ok := c.imported[e.Name]; ok {
		addr := c.emit(CALL, 0)
		c.prog.Relocations = append(c.prog.Relocations, Relocation{OperandOffset: addr + 1, Name: e.Name})
		return
	}
	c.errorf("undefined function: %s", e.Name)
}

// compileElemAddr computes the heap address of array[index] and leaves it
// on the stack: arrayAddr + 4 + 4*index, skipping the 4-byte length word.
func (c *Compiler) compileElemAddr(aa *ast.ArrayAccess) {
	c.compileExpr(aa.Array)
	c.compileExpr(aa.Index)
	c.emit(PUSH, 4)
	c.emit(MUL)
	c.emit(PUSH, 4)
	c.emit(ADD)
	c.emit(ADD)
}

func (c *Compiler) compileArrayLit(lit *ast.ArrayLit) {
	n := len(lit.Elems)
	size := 4 + 4*n
	c.emit(PUSH, size)
	c.emit(MALLOC)
	store, load := c.heapTemp()
	store()

	c.storeHeapWord32(load, 0, func() { c.emit(PUSH, n) })

	c.heapDepth++
	for i, elem := range lit.Elems {
		offset := 4 + 4*i
		c.storeHeapWord32(load, offset, func() { c.compileExpr(elem) })
	}
	c.heapDepth--

	load()
}

func (c *Compiler) compileStringLit(lit *ast.StringLit) {
	n := len(lit.Value)
	size := 4 + n + 1
	c.emit(PUSH, size)
	c.emit(MALLOC)
	store, load := c.heapTemp()
	store()

	c.storeHeapWord32(load, 0, func() { c.emit(PUSH, n) })
	for i := 0; i < n; i++ {
		offset := 4 + i
		ch := lit.Value[i]
		c.storeHeapWord8(load, offset, func() { c.emit(PUSH, int(ch)) })
	}
	c.storeHeapWord8(load, 4+n, func() { c.emit(PUSH, 0) })

	load()
}

// storeHeapWord32/8 writes valueFn()'s result at addr+offset using the
// stack-addressed store opcodes: value is pushed first, then the address,
// so the store (which pops address then value) finds them in the right
// order.
func (c *Compiler) storeHeapWord32(load func(), offset int, valueFn func()) {
	valueFn()
	load()
	if offset != 0 {
		c.emit(PUSH, offset)
		c.emit(ADD)
	}
	c.emit(STORE32_STACK)
}

func (c *Compiler) storeHeapWord8(load func(), offset int, valueFn func()) {
	valueFn()
	load()
	if offset != 0 {
		c.emit(PUSH, offset)
		c.emit(ADD)
	}
	c.emit(STORE8_STACK)
}
