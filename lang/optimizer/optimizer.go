// Package optimizer transforms compiled bytecode into smaller, equivalent
// bytecode: a peephole pass over small instruction windows, followed by a
// dead-code elimination pass driven by reachability. Neither pass ever
// treats the bytecode as a free-form byte stream — opcode arity always says
// exactly how many operand words to skip.
package optimizer

import (
	"fmt"

	"github.com/mira-lang/tvm/lang/compiler"
)

// Stats summarizes what a Run did, for reporting to the host.
type Stats struct {
	OriginalSize  int
	OptimizedSize int
	Applied       []string
}

// Run optimizes p.Bytecode in place on a copy, returning the optimized
// program and a record of which transformations fired. Relocation operand
// offsets and function/export addresses are rewritten to track their
// instructions through both passes, so the linker can still find them
// afterward. Reachability starts at address 0 only, so a function that no
// reachable code calls (such as an export used only by other modules) is
// dropped, and its map entries keep an address that no longer holds it.
func Run(p *compiler.Program) (*compiler.Program, Stats) {
	stats := Stats{OriginalSize: len(p.Bytecode)}

	code, relocs, peepMap, peepholeApplied := peephole(p.Bytecode, p.Relocations)
	stats.Applied = append(stats.Applied, peepholeApplied...)

	code, relocs, addrMap, dceApplied := deadCodeEliminate(code, relocs)
	stats.Applied = append(stats.Applied, dceApplied...)

	out := &compiler.Program{
		Bytecode:    code,
		VariableMap: p.VariableMap,
		FunctionMap: remapTable(remapTable(p.FunctionMap, peepMap), addrMap),
		ExportMap:   remapTable(remapTable(p.ExportMap, peepMap), addrMap),
		Relocations: relocs,
		Imports:     p.Imports,
	}
	stats.OptimizedSize = len(code)
	return out, stats
}

func remapTable(t *compiler.SymbolTable, addrMap map[int]int) *compiler.SymbolTable {
	out := compiler.NewSymbolTable(t.Len())
	t.Each(func(name string, addr int) {
		if newAddr, ok := addrMap[addr]; ok {
			out.Set(name, newAddr)
		} else {
			out.Set(name, addr) // instruction was dropped; the old address is kept as is
		}
	})
	return out
}

// peephole scans the bytecode left to right, trying each recognized
// rewrite in a fixed priority order at every position; at most one rewrite
// fires per position, and unmatched instructions copy through verbatim.
// Relocation offsets and branch targets are recomputed since deleted/folded
// instructions shift everything after them.
func peephole(code []int, relocs []compiler.Relocation) ([]int, []compiler.Relocation, map[int]int, []string) {
	relocSet := make(map[int]string, len(relocs))
	for _, r := range relocs {
		relocSet[r.OperandOffset] = r.Name
	}

	var out []int
	offsetMap := make(map[int]int) // old operand-offset -> new operand-offset
	addrMap := make(map[int]int)   // old instruction address -> new address
	applied := make([]string, 0)

	pc := 0
	for pc < len(code) {
		op := compiler.Opcode(code[pc])
		addrMap[pc] = len(out)

		if isPush(code, pc) && isOp(code, pc+2, compiler.ADD) && pushValue(code, pc) == 0 {
			applied = append(applied, fmt.Sprintf("%d: PUSH 0; ADD -> (removed)", pc))
			pc += 3
			continue
		}
		if isPush(code, pc) && isOp(code, pc+2, compiler.MUL) && pushValue(code, pc) == 1 {
			applied = append(applied, fmt.Sprintf("%d: PUSH 1; MUL -> (removed)", pc))
			pc += 3
			continue
		}
		if isPush(code, pc) && isOp(code, pc+2, compiler.MUL) && pushValue(code, pc) == 0 {
			applied = append(applied, fmt.Sprintf("%d: PUSH 0; MUL -> PUSH 0", pc))
			remapOperand(offsetMap, pc+1, len(out)+1, relocSet)
			out = append(out, int(compiler.PUSH), 0)
			pc += 3
			continue
		}
		if isPush(code, pc) && isPush(code, pc+2) {
			var combine func(a, b int) int
			var opName string
			switch {
			case isOp(code, pc+4, compiler.ADD):
				combine, opName = func(a, b int) int { return a + b }, "ADD"
			case isOp(code, pc+4, compiler.SUB):
				combine, opName = func(a, b int) int { return a - b }, "SUB"
			case isOp(code, pc+4, compiler.MUL):
				combine, opName = func(a, b int) int { return a * b }, "MUL"
			}
			if combine != nil {
				a, b := pushValue(code, pc), pushValue(code, pc+2)
				applied = append(applied, fmt.Sprintf("%d: PUSH %d; PUSH %d; %s -> PUSH %d", pc, a, b, opName, combine(a, b)))
				remapOperand(offsetMap, pc+1, len(out)+1, relocSet)
				out = append(out, int(compiler.PUSH), combine(a, b))
				pc += 5
				continue
			}
		}

		arity := compiler.Arity(op)
		if arity < 0 {
			out = append(out, code[pc])
			pc++
			continue
		}
		out = append(out, code[pc])
		for i := 1; i <= arity; i++ {
			if pc+i < len(code) {
				remapOperand(offsetMap, pc+i, len(out), relocSet)
				out = append(out, code[pc+i])
			}
		}
		pc += 1 + arity
	}

	// Branch/call/try-entry operands still hold pre-rewrite addresses; move
	// them to where their target instructions now live.
	for i := 0; i < len(out); i += 1 + max(compiler.Arity(compiler.Opcode(out[i])), 0) {
		if compiler.IsBranch(compiler.Opcode(out[i])) && i+1 < len(out) {
			if newTarget, ok := addrMap[out[i+1]]; ok {
				out[i+1] = newTarget
			}
		}
	}

	newRelocs := make([]compiler.Relocation, 0, len(relocs))
	for _, r := range relocs {
		if newOff, ok := offsetMap[r.OperandOffset]; ok {
			newRelocs = append(newRelocs, compiler.Relocation{OperandOffset: newOff, Name: r.Name})
		}
	}
	return out, newRelocs, addrMap, applied
}

// remapOperand records that the instruction whose operand lived at oldOff
// now has its operand at newOff, so callers with stale offsets (e.g. the
// relocation table) can be corrected. It only bothers for offsets that a
// relocation actually references, to stay cheap.
func remapOperand(offsetMap map[int]int, oldOff, newOff int, relocSet map[int]string) {
	if _, ok := relocSet[oldOff]; ok {
		offsetMap[oldOff] = newOff
	}
}

func isPush(code []int, pc int) bool {
	return pc < len(code) && compiler.Opcode(code[pc]) == compiler.PUSH && pc+1 < len(code)
}

func pushValue(code []int, pc int) int {
	return code[pc+1]
}

func isOp(code []int, pc int, op compiler.Opcode) bool {
	return pc < len(code) && compiler.Opcode(code[pc]) == op
}

// deadCodeEliminate performs a reachability walk from address 0 using a
// worklist. JMP contributes only its target as a successor; CALL and
// ENTER_TRY contribute both their target and the following instruction, as
// do the two conditional branches; every other instruction falls through
// except RET, which (along with HALT, reachable but terminal) has none.
func deadCodeEliminate(code []int, relocs []compiler.Relocation) ([]int, []compiler.Relocation, map[int]int, []string) {
	reachable := make(map[int]bool)
	var worklist []int
	if len(code) > 0 {
		worklist = append(worklist, 0)
	}
	for len(worklist) > 0 {
		pc := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if pc < 0 || pc >= len(code) || reachable[pc] {
			continue
		}
		reachable[pc] = true
		op := compiler.Opcode(code[pc])
		arity := compiler.Arity(op)
		if arity < 0 {
			continue
		}
		next := pc + 1 + arity

		switch op {
		case compiler.JMP, compiler.CALL, compiler.ENTER_TRY:
			if pc+1 < len(code) {
				worklist = append(worklist, code[pc+1])
			}
			if op == compiler.CALL || op == compiler.ENTER_TRY {
				worklist = append(worklist, next)
			}
		case compiler.JMP_IF_ZERO, compiler.JMP_IF_NEG:
			if pc+1 < len(code) {
				worklist = append(worklist, code[pc+1])
			}
			worklist = append(worklist, next)
		case compiler.RET, compiler.HALT:
			// no fall-through
		default:
			worklist = append(worklist, next)
		}
	}

	addrMap := make(map[int]int)
	var out []int
	relocSet := make(map[int]string, len(relocs))
	for _, r := range relocs {
		relocSet[r.OperandOffset] = r.Name
	}
	operandOffsetMap := make(map[int]int)

	pc := 0
	dropped := 0
	for pc < len(code) {
		op := compiler.Opcode(code[pc])
		arity := compiler.Arity(op)
		if arity < 0 {
			pc++
			continue
		}
		if !reachable[pc] {
			dropped++
			pc += 1 + arity
			continue
		}
		addrMap[pc] = len(out)
		out = append(out, code[pc])
		for i := 1; i <= arity; i++ {
			if pc+i < len(code) {
				operandOffsetMap[pc+i] = len(out)
				out = append(out, code[pc+i])
			}
		}
		pc += 1 + arity
	}

	// Rewrite branch/call/try-entry operands through addrMap now that final
	// positions are known.
	for pc := 0; pc < len(out); {
		op := compiler.Opcode(out[pc])
		arity := compiler.Arity(op)
		if arity < 0 {
			pc++
			continue
		}
		if compiler.IsBranch(op) && arity == 1 && pc+1 < len(out) {
			oldTarget := out[pc+1]
			if newTarget, ok := addrMap[oldTarget]; ok {
				out[pc+1] = newTarget
			}
		}
		pc += 1 + arity
	}

	newRelocs := make([]compiler.Relocation, 0, len(relocs))
	for _, r := range relocs {
		if newOff, ok := operandOffsetMap[r.OperandOffset]; ok {
			newRelocs = append(newRelocs, compiler.Relocation{OperandOffset: newOff, Name: r.Name})
		}
	}

	var applied []string
	if dropped > 0 {
		applied = append(applied, fmt.Sprintf("dead code elimination: dropped %d unreachable word(s)", dropped))
	}
	return out, newRelocs, addrMap, applied
}
