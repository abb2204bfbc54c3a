package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Disassemble renders p's bytecode as an addressed mnemonic listing, one
// instruction per line, with a comment marking any address that a function
// or variable name resolves to. It never recomputes instruction boundaries
// by scanning for opcode-looking values — arity tells it exactly how many
// operand words follow.
func Disassemble(p *Program) string {
	labels := make(map[int][]string)
	addLabels(labels, p.FunctionMap, "fn")
	addLabels(labels, p.VariableMap, "var")
	addLabels(labels, p.ExportMap, "export")

	relocAt := make(map[int]string)
	for _, r := range p.Relocations {
		relocAt[r.OperandOffset] = r.Name
	}

	var b strings.Builder
	code := p.Bytecode
	for pc := 0; pc < len(code); {
		if names, ok := labels[pc]; ok {
			sort.Strings(names)
			fmt.Fprintf(&b, "; %s\n", strings.Join(names, ", "))
		}

		op := Opcode(code[pc])
		arity := Arity(op)
		if arity < 0 {
			fmt.Fprintf(&b, "%6d  <invalid opcode %d>\n", pc, code[pc])
			pc++
			continue
		}

		fmt.Fprintf(&b, "%6d  %-14s", pc, op.String())
		for i := 1; i <= arity; i++ {
			if pc+i >= len(code) {
				break
			}
			operand := code[pc+i]
			if name, ok := relocAt[pc+i]; ok {
				fmt.Fprintf(&b, " %d(%s)", operand, name)
			} else {
				fmt.Fprintf(&b, " %d", operand)
			}
		}
		b.WriteByte('\n')
		pc += 1 + arity
	}
	return b.String()
}

func addLabels(labels map[int][]string, t *SymbolTable, tag string) {
	t.Each(func(name string, addr int) {
		labels[addr] = append(labels[addr], fmt.Sprintf("%s:%s", tag, name))
	})
}

var mnemonicToOpcode = buildMnemonicIndex()

func buildMnemonicIndex() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for i := Opcode(0); i < numOpcodes; i++ {
		m[i.String()] = i
	}
	return m
}

// Reassemble parses the listing produced by Disassemble back into a
// bytecode stream. It is the inverse half of the disassemble round-trip:
// for any Program p, Reassemble(Disassemble(p)) reproduces p.Bytecode
// exactly. Label comment lines (starting with ";") carry no bytecode of
// their own and are skipped; a relocation/label annotation on an operand
// ("123(name)") is parsed by its leading integer only, since that integer
// is always the real operand value already written into the bytecode —
// the annotation is disassembly-only decoration, never a placeholder.
func Reassemble(listing string) ([]int, error) {
	var code []int
	for lineNo, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("reassemble: line %d: malformed instruction %q", lineNo+1, line)
		}
		// fields[0] is the printed address, informational only; the real
		// address is always len(code) at the point this instruction is
		// appended, so it is not consulted here.
		mnemonic := fields[1]
		if strings.HasPrefix(mnemonic, "<invalid") {
			return nil, fmt.Errorf("reassemble: line %d: cannot reassemble an invalid-opcode line", lineNo+1)
		}
		op, ok := mnemonicToOpcode[mnemonic]
		if !ok {
			return nil, fmt.Errorf("reassemble: line %d: unknown mnemonic %q", lineNo+1, mnemonic)
		}

		operandFields := fields[2:]
		arity := Arity(op)
		if len(operandFields) != arity {
			return nil, fmt.Errorf("reassemble: line %d: %s wants %d operand(s), got %d", lineNo+1, mnemonic, arity, len(operandFields))
		}

		code = append(code, int(op))
		for _, f := range operandFields {
			if i := strings.IndexByte(f, '('); i >= 0 {
				f = f[:i]
			}
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("reassemble: line %d: invalid operand %q: %w", lineNo+1, f, err)
			}
			code = append(code, v)
		}
	}
	return code, nil
}
