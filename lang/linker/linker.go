// Package linker combines the per-module output of the compiler into a
// single bytecode image addressable by one flat global symbol table.
package linker

import (
	"fmt"

	"github.com/mira-lang/tvm/lang/compiler"
)

// Module is one compiled unit ready to be linked, named by the module name
// other modules import it under.
type Module struct {
	Name    string
	Program *compiler.Program
}

// Result is the outcome of linking: the merged bytecode and symbol table,
// plus any errors encountered. Errors are collected, not thrown — Result is
// always returned, even when Errors is non-empty, so a host can still
// inspect whatever did link successfully.
type Result struct {
	Bytecode    []int
	SymbolTable *compiler.SymbolTable // "<module>.<name>" -> address
	Errors      []error
}

// Error describes a single link failure.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// Link concatenates modules in input order, promotes every export to
// "<module>.<name>" in a merged symbol table, rebases every internal CALL,
// and resolves every relocation against the merged table.
func Link(modules []Module) *Result {
	res := &Result{SymbolTable: compiler.NewSymbolTable(0)}

	base := make(map[string]int, len(modules))
	offset := 0
	for _, m := range modules {
		base[m.Name] = offset
		offset += len(m.Program.Bytecode)
	}

	// Export promotion runs as its own pass before rebasing, so a relocation
	// resolves whether the exporting module comes before or after the
	// importing one.
	for _, m := range modules {
		b := base[m.Name]
		m.Program.ExportMap.Each(func(name string, addr int) {
			res.SymbolTable.Set(fmt.Sprintf("%s.%s", m.Name, name), b+addr)
		})
	}

	res.Bytecode = make([]int, 0, offset)
	for _, m := range modules {
		b := base[m.Name]
		localLen := len(m.Program.Bytecode)
		code := append([]int(nil), m.Program.Bytecode...)

		relocOffsets := make(map[int]string, len(m.Program.Relocations))
		for _, r := range m.Program.Relocations {
			relocOffsets[r.OperandOffset] = r.Name
		}

		for pc := 0; pc < len(code); {
			op := compiler.Opcode(code[pc])
			arity := compiler.Arity(op)
			if arity < 0 {
				pc++
				continue
			}
			if op == compiler.CALL && arity == 1 && pc+1 < len(code) {
				operandOffset := pc + 1
				if name, isReloc := relocOffsets[operandOffset]; isReloc {
					moduleName, ok := importedModuleFor(m, name)
					if !ok {
						res.Errors = append(res.Errors, &Error{Msg: fmt.Sprintf("module %s: import %q has no recorded source module", m.Name, name)})
					} else if addr, found := res.SymbolTable.Get(fmt.Sprintf("%s.%s", moduleName, name)); found {
						code[operandOffset] = addr
					} else if _, moduleLinked := base[moduleName]; !moduleLinked {
						res.Errors = append(res.Errors, &Error{Msg: fmt.Sprintf("module %s: imported module %q not found", m.Name, moduleName)})
					} else {
						res.Errors = append(res.Errors, &Error{Msg: fmt.Sprintf("module %s: imported symbol %q not exported by %q", m.Name, name, moduleName)})
					}
				} else if val := code[operandOffset]; val != 0 && val < localLen {
					// Internal call: operand was a local address, rebase it.
					code[operandOffset] = val + b
				}
			} else if compiler.IsBranch(op) && arity == 1 && pc+1 < len(code) {
				code[pc+1] += b
			}
			pc += 1 + arity
		}

		res.Bytecode = append(res.Bytecode, code...)
	}

	return res
}

func importedModuleFor(m Module, name string) (string, bool) {
	for _, imp := range m.Program.Imports {
		if imp.Name == name {
			return imp.ModuleName, true
		}
	}
	return "", false
}
